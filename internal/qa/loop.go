package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/buildswarm/swarm/internal/events"
	"github.com/buildswarm/swarm/internal/persistence"
	"github.com/buildswarm/swarm/internal/plan"
)

// DefaultMaxIterations caps review/fix rounds per build. It is deliberately
// above RecurringIssueThreshold so early escalation can fire first.
const DefaultMaxIterations = 5

// Iteration sources.
const (
	SourceReviewer = "reviewer"
	SourceFixer    = "fixer"
)

// Verdicts.
const (
	VerdictApproved = "approved"
	VerdictRejected = "rejected"
)

// Review is the outcome of one external reviewer session.
type Review struct {
	Approved bool
	Issues   []plan.Issue
}

// Reviewer runs an external review session against the staged code.
type Reviewer interface {
	Review(ctx context.Context, p *plan.ImplementationPlan) (Review, error)
}

// Fixer runs an external fix session addressing the reviewer's issues.
type Fixer interface {
	Fix(ctx context.Context, issues []plan.Issue) error
}

// Config configures the QA loop.
type Config struct {
	SpecName            string
	SpecDir             string
	PlanPath            string
	WorkDir             string // staging sandbox path holding the code under review
	MaxIterations       int
	RecurringThreshold  int
	SimilarityThreshold float64
}

// Loop drives bounded review/fix iterations against acceptance criteria,
// detecting issues that repeat across iterations and escalating to a human
// when stuck. The persisted plan carries the authoritative QA state; the
// store and bus are optional mirrors.
type Loop struct {
	cfg      Config
	reviewer Reviewer
	fixer    Fixer
	store    persistence.Store
	bus      *events.EventBus
}

// NewLoop creates a QA loop. store and bus may be nil.
func NewLoop(cfg Config, reviewer Reviewer, fixer Fixer, store persistence.Store, bus *events.EventBus) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.RecurringThreshold <= 0 {
		cfg.RecurringThreshold = RecurringIssueThreshold
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = IssueSimilarityThreshold
	}
	return &Loop{cfg: cfg, reviewer: reviewer, fixer: fixer, store: store, bus: bus}
}

// Run executes the validation loop until the plan is approved or escalated.
// It always terminates within MaxIterations review rounds. Reviewer or
// fixer session failures propagate; a rejected review is normal state, not
// an error.
func (l *Loop) Run(ctx context.Context, p *plan.ImplementationPlan) (plan.QAStatus, error) {
	switch p.QAState() {
	case plan.QAApproved, plan.QAEscalated:
		return p.QAState(), nil
	}

	if !HasTests(l.cfg.WorkDir) {
		if err := WriteManualTestPlan(l.cfg.SpecDir, p); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}

	start := l.reviewerIterations(p) + 1
	for iter := start; iter <= l.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return p.QAState(), err
		}

		if err := l.transition(p, plan.QAInReview); err != nil {
			return p.QAState(), err
		}

		review, err := l.reviewer.Review(ctx, p)
		if err != nil {
			return p.QAState(), fmt.Errorf("review iteration %d: %w", iter, err)
		}

		verdict := VerdictRejected
		if review.Approved {
			verdict = VerdictApproved
		}
		l.record(ctx, p, plan.QAIteration{
			Iteration: iter,
			Timestamp: time.Now().UTC(),
			Verdict:   verdict,
			Issues:    normalizeIssues(review.Issues),
			Source:    SourceReviewer,
		})

		if review.Approved {
			if err := l.transition(p, plan.QAApproved); err != nil {
				return p.QAState(), err
			}
			return plan.QAApproved, nil
		}

		if err := l.transition(p, plan.QARejected); err != nil {
			return p.QAState(), err
		}

		// An issue the fix step cannot resolve should not burn the rest of
		// the iteration budget.
		recurring := RecurringIssues(p.QA.Iterations, l.cfg.RecurringThreshold, l.cfg.SimilarityThreshold)
		if len(recurring) > 0 {
			return l.escalate(p, "recurring issues unresolved across iterations", recurring)
		}

		if iter == l.cfg.MaxIterations {
			break
		}

		if err := l.fixer.Fix(ctx, review.Issues); err != nil {
			return p.QAState(), fmt.Errorf("fix iteration %d: %w", iter, err)
		}
		l.record(ctx, p, plan.QAIteration{
			Iteration: iter,
			Timestamp: time.Now().UTC(),
			Verdict:   VerdictRejected,
			Issues:    normalizeIssues(review.Issues),
			Source:    SourceFixer,
		})
		if err := l.transition(p, plan.QAFixesApplied); err != nil {
			return p.QAState(), err
		}
	}

	return l.escalate(p, fmt.Sprintf("iteration budget (%d) exhausted without approval", l.cfg.MaxIterations), nil)
}

// escalate marks the plan escalated, writes the intervention marker, and
// terminates the loop. Escalation is persisted state plus a sentinel file,
// never a raised error: the build must remain inspectable.
func (l *Loop) escalate(p *plan.ImplementationPlan, reason string, recurring []string) (plan.QAStatus, error) {
	if err := Escalate(l.cfg.SpecDir, reason, recurring); err != nil {
		log.Printf("WARNING: %v", err)
	}
	if err := l.transition(p, plan.QAEscalated); err != nil {
		return p.QAState(), err
	}
	if l.bus != nil {
		l.bus.Publish(events.TopicQA, events.QAEscalatedEvent{
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		})
	}
	return plan.QAEscalated, nil
}

// transition sets the QA status and persists the plan. The plan file is the
// source of truth, so a failed save propagates.
func (l *Loop) transition(p *plan.ImplementationPlan, s plan.QAStatus) error {
	p.SetQAState(s)
	if err := plan.Save(p, l.cfg.PlanPath); err != nil {
		return fmt.Errorf("persisting qa status %q: %w", s, err)
	}
	if l.store != nil {
		if err := l.store.SetQAStatus(context.Background(), l.cfg.SpecName, string(s)); err != nil {
			log.Printf("WARNING: failed to mirror qa status: %v", err)
		}
	}
	return nil
}

// record appends an iteration to the plan history and mirrors it to the
// store and bus. Mirror failures are logged, never propagated.
func (l *Loop) record(ctx context.Context, p *plan.ImplementationPlan, rec plan.QAIteration) {
	p.AppendQAIteration(rec)
	if err := plan.Save(p, l.cfg.PlanPath); err != nil {
		log.Printf("WARNING: failed to persist iteration %d: %v", rec.Iteration, err)
	}

	if l.store != nil {
		issues, _ := json.Marshal(rec.Issues)
		err := l.store.RecordIteration(ctx, persistence.IterationRecord{
			Spec:      l.cfg.SpecName,
			Iteration: rec.Iteration,
			Verdict:   rec.Verdict,
			Source:    rec.Source,
			Issues:    string(issues),
		})
		if err != nil {
			log.Printf("WARNING: failed to mirror iteration %d: %v", rec.Iteration, err)
		}
	}

	if l.bus != nil {
		l.bus.Publish(events.TopicQA, events.QAIterationEvent{
			Iteration: rec.Iteration,
			Verdict:   rec.Verdict,
			Source:    rec.Source,
			Issues:    len(rec.Issues),
			Timestamp: rec.Timestamp,
		})
	}
}

// reviewerIterations counts prior review rounds so a resumed build picks up
// where it left off instead of restarting the budget.
func (l *Loop) reviewerIterations(p *plan.ImplementationPlan) int {
	if p.QA == nil {
		return 0
	}
	n := 0
	for _, rec := range p.QA.Iterations {
		if rec.Source == SourceReviewer {
			n++
		}
	}
	return n
}

func normalizeIssues(issues []plan.Issue) []plan.Issue {
	out := make([]plan.Issue, len(issues))
	for i, issue := range issues {
		out[i] = issue
		if out[i].Key == "" {
			out[i].Key = NormalizeIssueKey(issue.Description)
		}
	}
	return out
}
