package coordinator

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// progressFileName is the per-build assignment snapshot under the spec dir.
// It exists for crash inspection only; the coordinator never reads it back.
const progressFileName = "parallel_progress.json"

type progressSnapshot struct {
	UpdatedAt    time.Time          `json:"updated_at"`
	Workers      []WorkerAssignment `json:"workers"`
	ClaimedFiles map[string]string  `json:"claimed_files"`
}

// saveProgressLocked writes the assignment snapshot. Best effort: a failed
// write is logged and swallowed, it must never block claim or release.
// Callers must hold c.mu.
func (c *SwarmCoordinator) saveProgressLocked() {
	if c.specDir == "" {
		return
	}

	snap := progressSnapshot{
		UpdatedAt:    time.Now().UTC(),
		Workers:      make([]WorkerAssignment, 0, len(c.workers)),
		ClaimedFiles: make(map[string]string, len(c.claimed)),
	}
	for _, a := range c.workers {
		snap.Workers = append(snap.Workers, *a)
	}
	sort.Slice(snap.Workers, func(i, j int) bool {
		return snap.Workers[i].WorkerID < snap.Workers[j].WorkerID
	})
	for f, w := range c.claimed {
		snap.ClaimedFiles[f] = w
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Printf("WARNING: failed to encode progress snapshot: %v", err)
		return
	}

	path := filepath.Join(c.specDir, progressFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		log.Printf("WARNING: failed to write %s: %v", path, err)
	}
}
