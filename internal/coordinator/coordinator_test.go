package coordinator

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/buildswarm/swarm/internal/plan"
)

func testPlan(t *testing.T) *plan.ImplementationPlan {
	t.Helper()
	p, err := plan.Parse([]byte(`{
		"feature": "checkout flow",
		"phases": [
			{
				"phase": 1,
				"name": "models",
				"chunks": [
					{"id": "1a", "description": "cart model", "files_to_create": ["models/cart.go"]},
					{"id": "1b", "description": "order model", "files_to_create": ["models/order.go"]},
					{"id": "1c", "description": "cart helpers", "files_to_modify": ["models/cart.go"]}
				]
			},
			{
				"phase": 2,
				"name": "handlers",
				"depends_on": [1],
				"chunks": [
					{"id": "2a", "description": "checkout handler", "files_to_create": ["handlers/checkout.go"]}
				]
			}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

func claim(t *testing.T, c *SwarmCoordinator, workerID, chunkID string) (*plan.Phase, *plan.Chunk) {
	t.Helper()
	for _, pc := range c.AvailableChunks() {
		if pc.Chunk.ID == chunkID {
			if !c.ClaimChunk(workerID, pc.Phase, pc.Chunk, "/tmp/wt", "branch") {
				t.Fatalf("ClaimChunk(%s, %s) = false, want true", workerID, chunkID)
			}
			return pc.Phase, pc.Chunk
		}
	}
	t.Fatalf("chunk %s not available", chunkID)
	return nil, nil
}

func TestAvailableChunks_ExcludesUnmetDependencies(t *testing.T) {
	c := New(t.TempDir(), testPlan(t))

	ids := availableIDs(c)
	if _, ok := ids["2a"]; ok {
		t.Error("phase 2 chunk available before phase 1 completed")
	}
	if len(ids) != 3 {
		t.Errorf("got %d available chunks, want 3", len(ids))
	}
}

func TestClaimChunk_FileOverlapBlocksSecondClaim(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	claim(t, c, "w1", "1a") // holds models/cart.go

	// 1c writes models/cart.go too and must now be unavailable
	if _, ok := availableIDs(c)["1c"]; ok {
		t.Error("chunk with claimed file still listed available")
	}

	// Direct claim attempt must fail without mutating anything
	ph := p.PhaseByID(1)
	_, ch := p.ChunkByID("1c")
	if c.ClaimChunk("w2", ph, ch, "/tmp/wt2", "b2") {
		t.Error("overlapping claim succeeded")
	}
	if ch.Status != plan.ChunkPending {
		t.Errorf("failed claim mutated chunk status to %q", ch.Status)
	}
}

func TestClaimChunk_AlreadyClaimedChunkRejected(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	ph, ch := claim(t, c, "w1", "1a")
	if c.ClaimChunk("w2", ph, ch, "/tmp/wt2", "b2") {
		t.Error("second claim on in_progress chunk succeeded")
	}
}

func TestReleaseChunk_FreesFilesAndSetsStatus(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	claim(t, c, "w1", "1a")
	c.ReleaseChunk("w1", "1a", true, "")

	if len(c.ClaimedFiles()) != 0 {
		t.Errorf("claimed files not freed: %v", c.ClaimedFiles())
	}
	if _, ch := p.ChunkByID("1a"); ch.Status != plan.ChunkCompleted {
		t.Errorf("chunk status = %q, want completed", ch.Status)
	}

	// 1c shares cart.go and must be schedulable again
	if _, ok := availableIDs(c)["1c"]; !ok {
		t.Error("chunk not available after overlapping claim released")
	}
}

func TestReleaseChunk_FailureMarksFailed(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	claim(t, c, "w1", "1b")
	c.ReleaseChunk("w1", "1b", false, "boom")

	if _, ch := p.ChunkByID("1b"); ch.Status != plan.ChunkFailed {
		t.Errorf("chunk status = %q, want failed", ch.Status)
	}
}

func TestReleaseChunk_UnknownWorkerIsNoOp(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	claim(t, c, "w1", "1a")
	c.ReleaseChunk("ghost", "1a", false, "")

	if _, ch := p.ChunkByID("1a"); ch.Status != plan.ChunkInProgress {
		t.Errorf("no-op release changed chunk status to %q", ch.Status)
	}
	if len(c.ClaimedFiles()) == 0 {
		t.Error("no-op release freed another worker's files")
	}

	// Duplicate release after the real one is harmless
	c.ReleaseChunk("w1", "1a", true, "")
	c.ReleaseChunk("w1", "1a", false, "")
	if _, ch := p.ChunkByID("1a"); ch.Status != plan.ChunkCompleted {
		t.Error("duplicate release flipped a terminal status")
	}
}

func TestClaimChunk_ConcurrentClaimersExactlyOneWins(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)
	ph := p.PhaseByID(1)
	_, ch := p.ChunkByID("1a")

	const claimers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			if c.ClaimChunk(string(rune('a'+id)), ph, ch, "/tmp/wt", "b") {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d claimers won, want exactly 1", wins.Load())
	}
}

func TestDependentPhaseUnlocksAfterCompletion(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	for _, id := range []string{"1a", "1b"} {
		claim(t, c, "w-"+id, id)
		c.ReleaseChunk("w-"+id, id, true, "")
	}
	claim(t, c, "w-1c", "1c")
	c.ReleaseChunk("w-1c", "1c", true, "")

	if _, ok := availableIDs(c)["2a"]; !ok {
		t.Error("phase 2 chunk not available after phase 1 completed")
	}
}

func TestFailedChunkBlocksDependentsForever(t *testing.T) {
	p := testPlan(t)
	c := New(t.TempDir(), p)

	claim(t, c, "w1", "1a")
	c.ReleaseChunk("w1", "1a", false, "")
	for _, id := range []string{"1b", "1c"} {
		claim(t, c, "w-"+id, id)
		c.ReleaseChunk("w-"+id, id, true, "")
	}

	if _, ok := availableIDs(c)["2a"]; ok {
		t.Error("dependent chunk available despite failed dependency")
	}
	if len(c.AvailableChunks()) != 0 {
		t.Errorf("expected no schedulable work, got %d chunks", len(c.AvailableChunks()))
	}
}

func TestProgressSnapshotWritten(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, testPlan(t))

	claim(t, c, "w1", "1a")

	data, err := os.ReadFile(c.ProgressPath())
	if err != nil {
		t.Fatalf("progress snapshot not written: %v", err)
	}
	var snapshot struct {
		Workers []WorkerAssignment `json:"workers"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if len(snapshot.Workers) != 1 || snapshot.Workers[0].ChunkID != "1a" {
		t.Errorf("unexpected snapshot contents: %+v", snapshot)
	}
}

func TestNewParallelGroup_RejectsOverlappingWriteSets(t *testing.T) {
	p := testPlan(t)
	other, err := plan.Parse([]byte(`{
		"feature": "x",
		"phases": [
			{"phase": 3, "name": "a", "chunks": [{"id": "3a", "description": "x", "files_to_modify": ["models/cart.go"]}]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewParallelGroup([]*plan.Phase{p.PhaseByID(1), other.PhaseByID(3)})
	if err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestNewParallelGroup_DisjointPhases(t *testing.T) {
	p := testPlan(t)
	disjoint, err := plan.Parse([]byte(`{
		"feature": "x",
		"phases": [
			{"phase": 5, "name": "docs", "chunks": [{"id": "5a", "description": "x", "files_to_create": ["README.md"]}]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	g, err := NewParallelGroup([]*plan.Phase{p.PhaseByID(2), disjoint.PhaseByID(5)})
	if err != nil {
		t.Fatalf("NewParallelGroup failed: %v", err)
	}
	if g == nil {
		t.Fatal("nil group")
	}
}

func availableIDs(c *SwarmCoordinator) map[string]bool {
	ids := make(map[string]bool)
	for _, pc := range c.AvailableChunks() {
		ids[pc.Chunk.ID] = true
	}
	return ids
}
