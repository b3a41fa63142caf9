package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates an implementation plan from its JSON file.
// Malformed persisted state is a hard error: no partial plan is ever
// returned. A chunk with an empty status is normalized to pending so that
// hand-written plans don't need to spell it out.
func Load(path string) (*ImplementationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a plan from raw JSON.
func Parse(data []byte) (*ImplementationPlan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p ImplementationPlan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &p, nil
}

// validate enforces the structural invariants required at parse time.
// Unknown depends_on ids are NOT rejected here -- they render a phase
// permanently ineligible instead (see DependenciesMet).
func (p *ImplementationPlan) validate() error {
	if p.Feature == "" {
		return fmt.Errorf("missing required field %q", "feature")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}

	phaseIDs := make(map[int]bool, len(p.Phases))
	chunkIDs := make(map[string]bool)

	for i := range p.Phases {
		ph := &p.Phases[i]
		if ph.Phase <= 0 {
			return fmt.Errorf("phase %q: id must be a positive integer, got %d", ph.Name, ph.Phase)
		}
		if phaseIDs[ph.Phase] {
			return fmt.Errorf("duplicate phase id %d", ph.Phase)
		}
		phaseIDs[ph.Phase] = true

		for j := range ph.Chunks {
			c := &ph.Chunks[j]
			if c.ID == "" {
				return fmt.Errorf("phase %d: chunk %d has no id", ph.Phase, j)
			}
			if chunkIDs[c.ID] {
				return fmt.Errorf("duplicate chunk id %q", c.ID)
			}
			chunkIDs[c.ID] = true

			if c.Status == "" {
				c.Status = ChunkPending
			}
			switch c.Status {
			case ChunkPending, ChunkInProgress, ChunkCompleted, ChunkFailed:
			default:
				return fmt.Errorf("chunk %q: unknown status %q", c.ID, c.Status)
			}
		}
	}

	if _, err := p.Order(); err != nil {
		return err
	}
	return nil
}
