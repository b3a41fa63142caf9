// Package runner drives a build end to end: it polls the coordinator for
// schedulable chunks, executes them in parallel worker sandboxes, merges
// finished work into the staging sandbox, and finally gates the build
// through the QA loop.
package runner

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/buildswarm/swarm/internal/coordinator"
	"github.com/buildswarm/swarm/internal/events"
	"github.com/buildswarm/swarm/internal/persistence"
	"github.com/buildswarm/swarm/internal/plan"
	"github.com/buildswarm/swarm/internal/qa"
	"github.com/buildswarm/swarm/internal/session"
	"github.com/buildswarm/swarm/internal/worktree"
)

// SessionFactory creates an agent session runner for a role, rooted in the
// given sandbox directory.
type SessionFactory func(role, workDir string) (session.Runner, error)

// Config configures a build runner.
type Config struct {
	SpecName      string
	SpecDir       string
	PlanPath      string
	MaxWorkers    int           // default 3
	WorkerTimeout time.Duration // 0 disables the per-worker deadline

	// QA loop tuning; zero values take the qa package defaults.
	QAMaxIterations       int
	QARecurringThreshold  int
	QASimilarityThreshold float64
}

// ChunkResult is the outcome of one executed chunk.
type ChunkResult struct {
	ChunkID  string
	WorkerID string
	Success  bool
	Merged   bool
	Err      error
}

// BuildRunner executes an implementation plan with worktree-isolated
// concurrent workers. Chunk failures are recorded in the plan, never
// retried here; retry policy belongs to whoever invokes the runner again.
type BuildRunner struct {
	cfg        Config
	plan       *plan.ImplementationPlan
	coord      *coordinator.SwarmCoordinator
	trees      *worktree.Manager
	newSession SessionFactory
	reviewer   qa.Reviewer
	fixer      qa.Fixer
	store      persistence.Store // optional
	bus        *events.EventBus  // optional

	mu      sync.Mutex
	results []ChunkResult
}

// New creates a build runner. store and bus may be nil; reviewer and fixer
// may be nil to skip the QA gate (e.g. for dry runs).
func New(cfg Config, p *plan.ImplementationPlan, coord *coordinator.SwarmCoordinator,
	trees *worktree.Manager, factory SessionFactory, reviewer qa.Reviewer, fixer qa.Fixer,
	store persistence.Store, bus *events.EventBus) *BuildRunner {

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = coordinator.DefaultMaxWorkers
	}
	return &BuildRunner{
		cfg:        cfg,
		plan:       p,
		coord:      coord,
		trees:      trees,
		newSession: factory,
		reviewer:   reviewer,
		fixer:      fixer,
		store:      store,
		bus:        bus,
	}
}

// Run executes the plan to completion and then the QA gate. It returns the
// per-chunk results; the authoritative status lives in the plan file.
func (r *BuildRunner) Run(ctx context.Context) ([]ChunkResult, error) {
	if err := r.trees.Setup(); err != nil {
		return nil, err
	}

	staging, err := r.trees.GetOrCreateStaging(r.cfg.SpecName)
	if err != nil {
		return nil, err
	}

	r.resetStaleChunks()

	if r.store != nil {
		err := r.store.UpsertBuild(ctx, persistence.BuildRecord{
			Spec:          r.cfg.SpecName,
			Feature:       r.plan.Feature,
			StagingBranch: staging.Branch,
			QAStatus:      string(r.plan.QAState()),
		})
		if err != nil {
			log.Printf("WARNING: failed to register build: %v", err)
		}
	}

	// Worker sandboxes from a failed wave must not survive the run.
	defer r.trees.CleanupWorkersOnly()

	for {
		if err := ctx.Err(); err != nil {
			return r.results, err
		}

		available := r.coord.AvailableChunks()
		if len(available) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.MaxWorkers)
		for _, pc := range available {
			pc := pc
			g.Go(func() error {
				r.executeChunk(gctx, pc)
				return nil
			})
		}
		g.Wait()

		if err := plan.Save(r.plan, r.cfg.PlanPath); err != nil {
			return r.results, fmt.Errorf("persisting plan after wave: %w", err)
		}
	}

	if !r.plan.Complete() {
		// Pending chunks remain but nothing is schedulable: a failed chunk
		// is blocking its dependents. Leave the build inspectable.
		return r.results, fmt.Errorf("no schedulable work remains; a failed chunk blocks dependent phases")
	}

	if r.anyFailed() {
		log.Printf("WARNING: build %q finished with failed chunks; skipping QA gate", r.cfg.SpecName)
		return r.results, nil
	}

	if r.reviewer != nil && r.fixer != nil {
		status, err := r.runQA(ctx, staging)
		if err != nil {
			return r.results, err
		}
		log.Printf("QA finished for %q: %s", r.cfg.SpecName, status)
	}

	return r.results, nil
}

// executeChunk claims, implements, and integrates a single chunk. All
// failures are terminal chunk state, not returned errors, so one bad chunk
// never aborts the wave.
func (r *BuildRunner) executeChunk(ctx context.Context, pc coordinator.PhaseChunk) {
	workerID := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	branch := fmt.Sprintf("swarm/%s", workerID)
	path := filepath.Join(r.trees.Root(), workerID)

	if !r.coord.ClaimChunk(workerID, pc.Phase, pc.Chunk, path, branch) {
		// Lost the race to a concurrent claimer; normal contention, the
		// chunk stays pending for a later wave.
		return
	}
	started := time.Now()

	info, err := r.trees.Create(workerID, branch)
	if err != nil {
		log.Printf("ERROR: failed to create worktree for chunk %q: %v", pc.Chunk.ID, err)
		r.coord.ReleaseChunk(workerID, pc.Chunk.ID, false, err.Error())
		r.record(ChunkResult{ChunkID: pc.Chunk.ID, WorkerID: workerID, Err: err})
		return
	}

	r.publish(events.TopicChunk, events.ChunkClaimedEvent{
		ID: pc.Chunk.ID, WorkerID: workerID, PhaseID: pc.Phase.Phase, Branch: branch, Timestamp: started,
	})
	if r.store != nil {
		err := r.store.RecordAssignment(ctx, persistence.AssignmentRecord{
			WorkerID: workerID, Spec: r.cfg.SpecName, PhaseID: pc.Phase.Phase,
			ChunkID: pc.Chunk.ID, Branch: branch, Worktree: info.Path,
			Status: string(coordinator.WorkerWorking), StartedAt: started.UTC(),
		})
		if err != nil {
			log.Printf("WARNING: failed to record assignment: %v", err)
		}
	}

	success := r.implementChunk(ctx, pc, workerID, info)

	merged := false
	if success {
		if err := r.trees.CommitIn(workerID, fmt.Sprintf("swarm: %s", pc.Chunk.Description)); err != nil {
			log.Printf("ERROR: commit failed for chunk %q: %v", pc.Chunk.ID, err)
			success = false
		} else {
			merged, err = r.trees.MergeBranchToStaging(branch)
			if err != nil {
				log.Printf("ERROR: staging merge failed for chunk %q: %v", pc.Chunk.ID, err)
			}
			r.publish(events.TopicMerge, events.MergeResultEvent{
				ID: pc.Chunk.ID, Branch: branch, Merged: merged, Timestamp: time.Now(),
			})
			success = merged
		}
	}

	r.coord.ReleaseChunk(workerID, pc.Chunk.ID, success, "")
	r.publish(events.TopicChunk, events.ChunkReleasedEvent{
		ID: pc.Chunk.ID, WorkerID: workerID, Success: success,
		Duration: time.Since(started), Timestamp: time.Now(),
	})
	if r.store != nil {
		status := coordinator.WorkerCompleted
		if !success {
			status = coordinator.WorkerFailed
		}
		if err := r.store.CompleteAssignment(ctx, workerID, string(status)); err != nil {
			log.Printf("WARNING: failed to complete assignment: %v", err)
		}
	}

	// Keep the branch of a conflicted merge for inspection.
	r.trees.Remove(workerID, success)

	r.record(ChunkResult{ChunkID: pc.Chunk.ID, WorkerID: workerID, Success: success, Merged: merged})
}

// implementChunk runs the coder session for a claimed chunk in its sandbox.
func (r *BuildRunner) implementChunk(ctx context.Context, pc coordinator.PhaseChunk, workerID string, info *worktree.Info) bool {
	sess, err := r.newSession("coder", info.Path)
	if err != nil {
		log.Printf("ERROR: failed to create session for chunk %q: %v", pc.Chunk.ID, err)
		return false
	}
	defer sess.Close()

	if r.cfg.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WorkerTimeout)
		defer cancel()
	}

	_, err = sess.Run(ctx, session.Request{Prompt: chunkPrompt(pc), Role: "user"})
	if err != nil {
		log.Printf("ERROR: session failed for chunk %q (worker %s): %v", pc.Chunk.ID, workerID, err)
		return false
	}
	return true
}

// runQA executes the QA gate against the staging sandbox.
func (r *BuildRunner) runQA(ctx context.Context, staging *worktree.Info) (plan.QAStatus, error) {
	loop := qa.NewLoop(qa.Config{
		SpecName:            r.cfg.SpecName,
		SpecDir:             r.cfg.SpecDir,
		PlanPath:            r.cfg.PlanPath,
		WorkDir:             staging.Path,
		MaxIterations:       r.cfg.QAMaxIterations,
		RecurringThreshold:  r.cfg.QARecurringThreshold,
		SimilarityThreshold: r.cfg.QASimilarityThreshold,
	}, r.reviewer, r.fixer, r.store, r.bus)

	return loop.Run(ctx, r.plan)
}

// resetStaleChunks returns chunks stuck in_progress by a crash to pending.
// Claim state is deliberately not rebuilt from the progress snapshot; the
// plan file is the only authority and the work is simply re-schedulable.
func (r *BuildRunner) resetStaleChunks() {
	for i := range r.plan.Phases {
		for j := range r.plan.Phases[i].Chunks {
			c := &r.plan.Phases[i].Chunks[j]
			if c.Status == plan.ChunkInProgress {
				log.Printf("Resetting stale in-progress chunk %q to pending", c.ID)
				c.Status = plan.ChunkPending
			}
		}
	}
}

func (r *BuildRunner) anyFailed() bool {
	for i := range r.plan.Phases {
		for j := range r.plan.Phases[i].Chunks {
			if r.plan.Phases[i].Chunks[j].Status == plan.ChunkFailed {
				return true
			}
		}
	}
	return false
}

func (r *BuildRunner) record(res ChunkResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *BuildRunner) publish(topic string, e events.Event) {
	if r.bus != nil {
		r.bus.Publish(topic, e)
	}
}

func chunkPrompt(pc coordinator.PhaseChunk) string {
	prompt := fmt.Sprintf("Implement chunk %s (%s) of phase %d (%s).\n%s\n",
		pc.Chunk.ID, pc.Chunk.Service, pc.Phase.Phase, pc.Phase.Name, pc.Chunk.Description)
	if len(pc.Chunk.FilesToModify) > 0 {
		prompt += fmt.Sprintf("Modify only: %v\n", pc.Chunk.FilesToModify)
	}
	if len(pc.Chunk.FilesToCreate) > 0 {
		prompt += fmt.Sprintf("Create only: %v\n", pc.Chunk.FilesToCreate)
	}
	return prompt
}
