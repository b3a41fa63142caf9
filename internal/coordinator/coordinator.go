package coordinator

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/buildswarm/swarm/internal/plan"
)

// DefaultMaxWorkers is the number of concurrent workers when unconfigured.
const DefaultMaxWorkers = 3

// SwarmCoordinator decides which chunks may start now and enforces file-level
// mutual exclusion across concurrently running work. It owns the
// claimed-files table and the live assignment map; it never touches git --
// worktree paths and branch names are handed in by the caller.
//
// One mutex guards all coordinator state. It is deliberately independent of
// the worktree manager's merge lock: claiming must stay fast and
// non-blocking while a merge is in flight.
type SwarmCoordinator struct {
	mu         sync.Mutex
	specDir    string
	maxWorkers int
	plan       *plan.ImplementationPlan
	claimed    map[string]string            // file path -> worker id
	workers    map[string]*WorkerAssignment // worker id -> assignment
}

// Option configures a SwarmCoordinator.
type Option func(*SwarmCoordinator)

// WithMaxWorkers overrides the default worker cap.
func WithMaxWorkers(n int) Option {
	return func(c *SwarmCoordinator) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// New creates a coordinator for the plan rooted at specDir.
func New(specDir string, p *plan.ImplementationPlan, opts ...Option) *SwarmCoordinator {
	c := &SwarmCoordinator{
		specDir:    specDir,
		maxWorkers: DefaultMaxWorkers,
		plan:       p,
		claimed:    make(map[string]string),
		workers:    make(map[string]*WorkerAssignment),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxWorkers returns the configured worker cap.
func (c *SwarmCoordinator) MaxWorkers() int { return c.maxWorkers }

// ProgressPath returns the location of the crash-inspection snapshot file.
func (c *SwarmCoordinator) ProgressPath() string {
	return filepath.Join(c.specDir, progressFileName)
}

// AvailableChunks returns the (phase, chunk) pairs that may start right now:
// pending chunks in phases whose dependencies are all met, with no file in
// the chunk's write-set currently claimed. The result follows plan order, so
// earlier phases win ties. This is a pure read and may be polled repeatedly.
func (c *SwarmCoordinator) AvailableChunks() []PhaseChunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.plan == nil {
		return nil
	}

	var out []PhaseChunk
	for i := range c.plan.Phases {
		ph := &c.plan.Phases[i]
		if !c.plan.DependenciesMet(ph) {
			continue
		}
		for j := range ph.Chunks {
			ch := &ph.Chunks[j]
			if ch.Status != plan.ChunkPending {
				continue
			}
			if c.anyClaimedLocked(ch.WriteSet()) {
				continue
			}
			out = append(out, PhaseChunk{Phase: ph, Chunk: ch})
		}
	}
	return out
}

// ClaimChunk atomically claims a chunk for a worker. It re-verifies that the
// chunk is still pending and that none of its files are held -- two callers
// may both have observed the chunk via AvailableChunks before either claimed
// it. On success every file in the chunk's write-set is mapped to the
// worker, an assignment is recorded, and the chunk moves to in_progress.
// On any failed check nothing is mutated and false is returned; contention
// is not an error.
func (c *SwarmCoordinator) ClaimChunk(workerID string, phase *plan.Phase, chunk *plan.Chunk, worktreePath, branchName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk.Status != plan.ChunkPending {
		return false
	}
	files := chunk.WriteSet()
	if c.anyClaimedLocked(files) {
		return false
	}

	for _, f := range files {
		c.claimed[f] = workerID
	}
	c.workers[workerID] = &WorkerAssignment{
		WorkerID:     workerID,
		PhaseID:      phase.Phase,
		ChunkID:      chunk.ID,
		BranchName:   branchName,
		WorktreePath: worktreePath,
		Status:       WorkerWorking,
		StartedAt:    time.Now().UTC(),
	}
	chunk.Status = plan.ChunkInProgress

	c.saveProgressLocked()
	return true
}

// ReleaseChunk removes the worker's assignment, unconditionally frees every
// file it held, and marks the chunk completed or failed. A release for an
// unknown worker id is a no-op, so duplicate releases (a timeout racing a
// late completion signal) are harmless.
func (c *SwarmCoordinator) ReleaseChunk(workerID, chunkID string, success bool, output string) {
	_ = output // recorded by the driver's store, not coordinator state

	c.mu.Lock()
	defer c.mu.Unlock()

	assignment, ok := c.workers[workerID]
	if !ok {
		return
	}

	for file, holder := range c.claimed {
		if holder == workerID {
			delete(c.claimed, file)
		}
	}
	delete(c.workers, workerID)

	if _, chunk := c.plan.ChunkByID(chunkID); chunk != nil {
		if success {
			chunk.Status = plan.ChunkCompleted
		} else {
			chunk.Status = plan.ChunkFailed
		}
	}

	now := time.Now().UTC()
	assignment.CompletedAt = &now
	if success {
		assignment.Status = WorkerCompleted
	} else {
		assignment.Status = WorkerFailed
	}

	c.saveProgressLocked()
}

// ActiveWorkers returns a snapshot of the current assignments.
func (c *SwarmCoordinator) ActiveWorkers() []WorkerAssignment {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkerAssignment, 0, len(c.workers))
	for _, a := range c.workers {
		out = append(out, *a)
	}
	return out
}

// ClaimedFiles returns a copy of the claimed-files table.
func (c *SwarmCoordinator) ClaimedFiles() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.claimed))
	for f, w := range c.claimed {
		out[f] = w
	}
	return out
}

func (c *SwarmCoordinator) anyClaimedLocked(files []string) bool {
	for _, f := range files {
		if _, held := c.claimed[f]; held {
			return true
		}
	}
	return false
}
