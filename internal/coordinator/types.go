package coordinator

import (
	"time"

	"github.com/buildswarm/swarm/internal/plan"
)

// WorkerStatus is the lifecycle of a worker assignment.
type WorkerStatus string

const (
	WorkerIdle      WorkerStatus = "idle"
	WorkerWorking   WorkerStatus = "working"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
)

// WorkerAssignment is the coordinator's runtime view of one claimed chunk.
// It is created on a successful claim and destroyed on release. The plan's
// chunk status is authoritative; assignments are never recovered from disk.
type WorkerAssignment struct {
	WorkerID     string       `json:"worker_id"`
	PhaseID      int          `json:"phase_id"`
	ChunkID      string       `json:"chunk_id"`
	BranchName   string       `json:"branch_name"`
	WorktreePath string       `json:"worktree_path"`
	Status       WorkerStatus `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at"`
}

// PhaseChunk is one schedulable (phase, chunk) pair returned by
// AvailableChunks. The pointers alias the coordinator's plan.
type PhaseChunk struct {
	Phase *plan.Phase
	Chunk *plan.Chunk
}
