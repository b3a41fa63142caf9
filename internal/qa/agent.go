package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildswarm/swarm/internal/plan"
	"github.com/buildswarm/swarm/internal/session"
)

// reviewVerdict is the structured message an external reviewer session must
// emit as the last JSON object of its output. Structured request/response,
// no text scraping.
type reviewVerdict struct {
	Verdict string `json:"verdict"` // "approved" or "rejected"
	Issues  []struct {
		Description string `json:"description"`
	} `json:"issues"`
}

// SessionReviewer adapts an agent session runner to the Reviewer interface.
type SessionReviewer struct {
	Runner session.Runner
}

// Review asks the external session to review the staged changes against the
// plan's acceptance criteria and decodes its verdict.
func (r *SessionReviewer) Review(ctx context.Context, p *plan.ImplementationPlan) (Review, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the staged changes for feature %q against these acceptance criteria:\n", p.Feature)
	for _, criterion := range p.FinalAcceptance {
		fmt.Fprintf(&b, "- %s\n", criterion)
	}
	b.WriteString("\nRespond with a single JSON object: ")
	b.WriteString(`{"verdict":"approved"|"rejected","issues":[{"description":"..."}]}`)

	res, err := r.Runner.Run(ctx, session.Request{Prompt: b.String(), Role: "user"})
	if err != nil {
		return Review{}, err
	}

	verdict, err := decodeVerdict(res.Output)
	if err != nil {
		return Review{}, err
	}

	review := Review{Approved: verdict.Verdict == VerdictApproved}
	for _, issue := range verdict.Issues {
		review.Issues = append(review.Issues, plan.Issue{Description: issue.Description})
	}
	return review, nil
}

// SessionFixer adapts an agent session runner to the Fixer interface.
type SessionFixer struct {
	Runner session.Runner
}

// Fix asks the external session to address the reviewer's issues in place.
func (f *SessionFixer) Fix(ctx context.Context, issues []plan.Issue) error {
	var b strings.Builder
	b.WriteString("Fix the following review issues in the working directory. Do not add new features.\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue.Description)
	}

	_, err := f.Runner.Run(ctx, session.Request{Prompt: b.String(), Role: "user"})
	return err
}

// decodeVerdict extracts the trailing JSON object from session output.
// Sessions may print progress text first; the verdict is the last line
// starting with '{'.
func decodeVerdict(output string) (reviewVerdict, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var v reviewVerdict
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return reviewVerdict{}, fmt.Errorf("decoding review verdict: %w", err)
		}
		if v.Verdict != VerdictApproved && v.Verdict != VerdictRejected {
			return reviewVerdict{}, fmt.Errorf("unknown review verdict %q", v.Verdict)
		}
		return v, nil
	}
	return reviewVerdict{}, fmt.Errorf("no verdict found in session output")
}
