package qa

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/buildswarm/swarm/internal/plan"
)

// RecurringIssueThreshold is how many iterations an unresolved issue may
// recur before the loop escalates instead of burning the iteration budget.
const RecurringIssueThreshold = 3

// IssueSimilarityThreshold is the minimum token-overlap ratio at which two
// normalized issue keys are considered the same underlying problem.
const IssueSimilarityThreshold = 0.8

// HumanInterventionMarker is the sentinel file whose presence tells the
// external driver to halt autonomous progress. The QA loop only ever
// creates it; deleting and polling it are driver concerns.
const HumanInterventionMarker = "PAUSE"

// NormalizeIssueKey reduces an issue description to a comparable key:
// lowercased, punctuation stripped, whitespace collapsed.
func NormalizeIssueKey(description string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IssueSimilarity returns the token-overlap ratio (Jaccard) between two
// normalized issue keys. Identical keys score 1.0; disjoint keys 0.0.
func IssueSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// RecurringIssues scans the reviewer iteration history and returns the
// normalized keys of issues that appeared in at least threshold iterations.
// Similar keys (per IssueSimilarity) count as the same issue.
func RecurringIssues(history []plan.QAIteration, threshold int, similarity float64) []string {
	// counts[key] = set of iteration numbers a similar issue appeared in.
	counts := make(map[string]map[int]bool)

	for _, rec := range history {
		if rec.Source != SourceReviewer {
			continue
		}
		for _, issue := range rec.Issues {
			key := issue.Key
			if key == "" {
				key = NormalizeIssueKey(issue.Description)
			}

			matched := ""
			for existing := range counts {
				if IssueSimilarity(existing, key) >= similarity {
					matched = existing
					break
				}
			}
			if matched == "" {
				matched = key
				counts[matched] = make(map[int]bool)
			}
			counts[matched][rec.Iteration] = true
		}
	}

	var recurring []string
	for key, iters := range counts {
		if len(iters) >= threshold {
			recurring = append(recurring, key)
		}
	}
	sort.Strings(recurring)
	return recurring
}

// Escalate writes the human-intervention marker into the spec directory
// with a summary of why the loop stopped. The build stays inspectable;
// escalation is state, not an error.
func Escalate(specDir, reason string, recurring []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "QA escalated to human at %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	if len(recurring) > 0 {
		b.WriteString("\nRepeated issues:\n")
		for _, key := range recurring {
			fmt.Fprintf(&b, "  - %s\n", key)
		}
	}

	path := filepath.Join(specDir, HumanInterventionMarker)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing intervention marker: %w", err)
	}
	return nil
}
