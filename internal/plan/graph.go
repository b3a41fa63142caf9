package plan

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Order runs a topological sort over the phase dependency graph and returns
// the phase ids in execution order. It fails if the graph contains a cycle.
// Edges referencing unknown phase ids are skipped: an unknown dependency
// makes a phase ineligible (DependenciesMet) but is not a structural error,
// since plans may be edited by hand.
func (p *ImplementationPlan) Order() ([]int, error) {
	known := make(map[int]bool, len(p.Phases))
	for i := range p.Phases {
		known[p.Phases[i].Phase] = true
	}

	var edges []toposort.Edge
	for i := range p.Phases {
		ph := &p.Phases[i]
		linked := false
		for _, depID := range ph.DependsOn {
			if !known[depID] {
				continue
			}
			// Edge (dep, phase): dep must come before phase.
			edges = append(edges, toposort.Edge{depID, ph.Phase})
			linked = true
		}
		if !linked {
			// Root phase: anchor from nil so it appears in the sort.
			edges = append(edges, toposort.Edge{nil, ph.Phase})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("phase dependency graph contains a cycle: %w", err)
	}

	order := make([]int, 0, len(p.Phases))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(int))
		}
	}
	return order, nil
}
