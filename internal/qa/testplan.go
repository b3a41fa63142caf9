package qa

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildswarm/swarm/internal/plan"
)

// ManualTestPlanFile is written when a project has no executable tests.
const ManualTestPlanFile = "MANUAL_TEST_PLAN.md"

// HasTests walks the project root looking for anything that resembles an
// executable test. Version-control and dependency directories are skipped.
func HasTests(root string) bool {
	found := false
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules", "vendor", ".worktrees":
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasSuffix(name, "_test.go"),
			strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py"),
			strings.HasSuffix(name, ".test.js"), strings.HasSuffix(name, ".test.ts"),
			strings.HasSuffix(name, ".spec.js"), strings.HasSuffix(name, ".spec.ts"):
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// WriteManualTestPlan substitutes a manually constructed checklist for test
// execution when test discovery comes up empty. The checklist is derived
// from the plan's final acceptance criteria.
func WriteManualTestPlan(specDir string, p *plan.ImplementationPlan) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Manual Test Plan: %s\n\n", p.Feature)
	b.WriteString("No executable tests were discovered in this project.\n")
	b.WriteString("Verify each item by hand before accepting the build.\n\n")

	if len(p.FinalAcceptance) > 0 {
		for _, criterion := range p.FinalAcceptance {
			fmt.Fprintf(&b, "- [ ] %s\n", criterion)
		}
	} else {
		for i := range p.Phases {
			for j := range p.Phases[i].Chunks {
				fmt.Fprintf(&b, "- [ ] %s\n", p.Phases[i].Chunks[j].Description)
			}
		}
	}

	path := filepath.Join(specDir, ManualTestPlanFile)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing manual test plan: %w", err)
	}
	return nil
}
