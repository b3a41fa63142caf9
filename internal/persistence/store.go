package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// BuildRecord is one tracked build in the registry.
type BuildRecord struct {
	Spec          string
	Feature       string
	StagingBranch string
	QAStatus      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IterationRecord mirrors one QA iteration for cross-build inspection. The
// plan file remains the source of truth; this table is an append-only copy.
type IterationRecord struct {
	Spec      string
	Iteration int
	Verdict   string
	Source    string
	Issues    string // JSON-encoded issue list
	CreatedAt time.Time
}

// AssignmentRecord is one row of the claim audit trail.
type AssignmentRecord struct {
	WorkerID    string
	Spec        string
	PhaseID     int
	ChunkID     string
	Branch      string
	Worktree    string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Store is the persistence interface for the build registry.
type Store interface {
	UpsertBuild(ctx context.Context, b BuildRecord) error
	GetBuild(ctx context.Context, spec string) (*BuildRecord, error)
	ListBuilds(ctx context.Context) ([]BuildRecord, error)
	SetQAStatus(ctx context.Context, spec, status string) error
	DeleteBuild(ctx context.Context, spec string) error

	RecordIteration(ctx context.Context, rec IterationRecord) error
	ListIterations(ctx context.Context, spec string) ([]IterationRecord, error)

	RecordAssignment(ctx context.Context, rec AssignmentRecord) error
	CompleteAssignment(ctx context.Context, workerID, status string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache
// lets multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite).
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
