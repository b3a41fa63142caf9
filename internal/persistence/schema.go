package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		spec TEXT PRIMARY KEY,
		feature TEXT NOT NULL,
		staging_branch TEXT NOT NULL,
		qa_status TEXT NOT NULL DEFAULT 'not_started',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS qa_iterations (
		spec TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		verdict TEXT NOT NULL,
		source TEXT NOT NULL,
		issues TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (spec, iteration, source),
		FOREIGN KEY (spec) REFERENCES builds(spec) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS assignments (
		worker_id TEXT PRIMARY KEY,
		spec TEXT NOT NULL,
		phase_id INTEGER NOT NULL,
		chunk_id TEXT NOT NULL,
		branch TEXT NOT NULL,
		worktree TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (spec) REFERENCES builds(spec) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_qa_iterations_spec ON qa_iterations(spec);
	CREATE INDEX IF NOT EXISTS idx_assignments_spec ON assignments(spec);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
