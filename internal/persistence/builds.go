package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UpsertBuild inserts or updates a build registry entry.
func (s *SQLiteStore) UpsertBuild(ctx context.Context, b BuildRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (spec, feature, staging_branch, qa_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(spec) DO UPDATE SET
			feature = excluded.feature,
			staging_branch = excluded.staging_branch,
			qa_status = excluded.qa_status,
			updated_at = CURRENT_TIMESTAMP
	`, b.Spec, b.Feature, b.StagingBranch, b.QAStatus)
	if err != nil {
		return fmt.Errorf("upserting build %q: %w", b.Spec, err)
	}
	return nil
}

// GetBuild fetches one build by spec name.
func (s *SQLiteStore) GetBuild(ctx context.Context, spec string) (*BuildRecord, error) {
	var b BuildRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT spec, feature, staging_branch, qa_status, created_at, updated_at
		FROM builds WHERE spec = ?
	`, spec).Scan(&b.Spec, &b.Feature, &b.StagingBranch, &b.QAStatus, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching build %q: %w", spec, err)
	}
	return &b, nil
}

// ListBuilds returns all tracked builds, most recently updated first.
func (s *SQLiteStore) ListBuilds(ctx context.Context) ([]BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT spec, feature, staging_branch, qa_status, created_at, updated_at
		FROM builds ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var b BuildRecord
		if err := rows.Scan(&b.Spec, &b.Feature, &b.StagingBranch, &b.QAStatus, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetQAStatus updates a build's QA status.
func (s *SQLiteStore) SetQAStatus(ctx context.Context, spec, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE builds SET qa_status = ?, updated_at = CURRENT_TIMESTAMP WHERE spec = ?
	`, status, spec)
	if err != nil {
		return fmt.Errorf("updating qa status for %q: %w", spec, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBuild removes a build and, via cascade, its iterations and
// assignments.
func (s *SQLiteStore) DeleteBuild(ctx context.Context, spec string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM builds WHERE spec = ?`, spec); err != nil {
		return fmt.Errorf("deleting build %q: %w", spec, err)
	}
	return nil
}

// RecordIteration appends a QA iteration row. Rows are never updated: the
// iteration history is append-only.
func (s *SQLiteStore) RecordIteration(ctx context.Context, rec IterationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qa_iterations (spec, iteration, verdict, source, issues, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, rec.Spec, rec.Iteration, rec.Verdict, rec.Source, rec.Issues)
	if err != nil {
		return fmt.Errorf("recording qa iteration %d for %q: %w", rec.Iteration, rec.Spec, err)
	}
	return nil
}

// ListIterations returns a build's QA history in iteration order.
func (s *SQLiteStore) ListIterations(ctx context.Context, spec string) ([]IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT spec, iteration, verdict, source, COALESCE(issues, ''), created_at
		FROM qa_iterations WHERE spec = ? ORDER BY iteration, created_at
	`, spec)
	if err != nil {
		return nil, fmt.Errorf("listing qa iterations for %q: %w", spec, err)
	}
	defer rows.Close()

	var out []IterationRecord
	for rows.Next() {
		var r IterationRecord
		if err := rows.Scan(&r.Spec, &r.Iteration, &r.Verdict, &r.Source, &r.Issues, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning iteration row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordAssignment inserts a claim audit row.
func (s *SQLiteStore) RecordAssignment(ctx context.Context, rec AssignmentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (worker_id, spec, phase_id, chunk_id, branch, worktree, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			spec = excluded.spec,
			phase_id = excluded.phase_id,
			chunk_id = excluded.chunk_id,
			branch = excluded.branch,
			worktree = excluded.worktree,
			status = excluded.status,
			started_at = excluded.started_at
	`, rec.WorkerID, rec.Spec, rec.PhaseID, rec.ChunkID, rec.Branch, rec.Worktree, rec.Status, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("recording assignment for %q: %w", rec.WorkerID, err)
	}
	return nil
}

// CompleteAssignment marks an assignment finished with a terminal status.
func (s *SQLiteStore) CompleteAssignment(ctx context.Context, workerID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assignments SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE worker_id = ?
	`, status, workerID)
	if err != nil {
		return fmt.Errorf("completing assignment for %q: %w", workerID, err)
	}
	return nil
}
