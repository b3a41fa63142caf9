package coordinator

import (
	"fmt"

	"github.com/buildswarm/swarm/internal/plan"
)

// ParallelGroup is a validated set of phases intended to run concurrently.
// Construction rejects any pair of phases whose chunk write-sets intersect:
// running them in parallel would defeat the claim protocol. This is a static
// check done once when grouping, independent of the per-chunk claim check.
type ParallelGroup struct {
	Phases []*plan.Phase
}

// NewParallelGroup validates that no two phases in the group declare
// overlapping files and returns the group with phase order preserved.
func NewParallelGroup(phases []*plan.Phase) (*ParallelGroup, error) {
	seen := make(map[string]int) // file -> phase id that declared it first
	for _, ph := range phases {
		for i := range ph.Chunks {
			for _, f := range ph.Chunks[i].WriteSet() {
				if prev, ok := seen[f]; ok && prev != ph.Phase {
					return nil, fmt.Errorf(
						"phases %d and %d cannot run in parallel: both write %s",
						prev, ph.Phase, f)
				}
				if _, ok := seen[f]; !ok {
					seen[f] = ph.Phase
				}
			}
		}
	}
	return &ParallelGroup{Phases: phases}, nil
}
