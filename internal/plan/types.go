package plan

import "time"

// WorkflowType classifies what kind of change a plan implements.
type WorkflowType string

const (
	WorkflowFeature  WorkflowType = "feature"
	WorkflowBugfix   WorkflowType = "bugfix"
	WorkflowRefactor WorkflowType = "refactor"
	WorkflowChore    WorkflowType = "chore"
)

// PhaseType classifies a phase within a plan.
type PhaseType string

const (
	PhaseSetup          PhaseType = "setup"
	PhaseImplementation PhaseType = "implementation"
	PhasePolish         PhaseType = "polish"
)

// ChunkStatus is the lifecycle of a chunk. Transitions:
// pending -> in_progress -> completed | failed. Terminal states are never
// left by the scheduler; only the plan file itself can be edited to retry.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkInProgress ChunkStatus = "in_progress"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// Chunk is the smallest schedulable unit of work. The union of FilesToModify
// and FilesToCreate is the chunk's exclusive-access write-set.
type Chunk struct {
	ID            string      `json:"id"`
	Description   string      `json:"description"`
	Service       string      `json:"service,omitempty"`
	Status        ChunkStatus `json:"status"`
	FilesToModify []string    `json:"files_to_modify,omitempty"`
	FilesToCreate []string    `json:"files_to_create,omitempty"`
}

// WriteSet returns the full set of files the chunk declares it will touch.
func (c *Chunk) WriteSet() []string {
	files := make([]string, 0, len(c.FilesToModify)+len(c.FilesToCreate))
	files = append(files, c.FilesToModify...)
	files = append(files, c.FilesToCreate...)
	return files
}

// Terminal reports whether the chunk has reached a final status.
func (c *Chunk) Terminal() bool {
	return c.Status == ChunkCompleted || c.Status == ChunkFailed
}

// Phase is an ordered group of chunks. The Phase number is the node id in the
// plan's dependency graph and must be unique within a plan.
type Phase struct {
	Phase     int       `json:"phase"`
	Name      string    `json:"name"`
	Type      PhaseType `json:"type,omitempty"`
	DependsOn []int     `json:"depends_on,omitempty"`
	Chunks    []Chunk   `json:"chunks"`
}

// QAStatus is the QA sign-off state machine persisted with the plan:
// not_started -> in_review -> {approved | rejected} -> fixes_applied ->
// in_review -> ... -> approved, or escalated (terminal, human-only recovery).
type QAStatus string

const (
	QANotStarted   QAStatus = "not_started"
	QAInReview     QAStatus = "in_review"
	QAApproved     QAStatus = "approved"
	QARejected     QAStatus = "rejected"
	QAFixesApplied QAStatus = "fixes_applied"
	QAEscalated    QAStatus = "escalated"
)

// Issue is a single problem reported by a review iteration.
type Issue struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// QAIteration is one entry in the QA iteration history. Entries are only
// ever appended, never mutated in place.
type QAIteration struct {
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
	Verdict   string    `json:"verdict"` // "approved" or "rejected"
	Issues    []Issue   `json:"issues,omitempty"`
	Source    string    `json:"source"` // "reviewer" or "fixer"
}

// QASignoff is the QA section of the persisted plan.
type QASignoff struct {
	Status     QAStatus      `json:"status"`
	Iterations []QAIteration `json:"iterations,omitempty"`
}

// ImplementationPlan is the root aggregate and the single source of truth
// for a build between runs.
type ImplementationPlan struct {
	Feature          string       `json:"feature"`
	WorkflowType     WorkflowType `json:"workflow_type"`
	ServicesInvolved []string     `json:"services_involved,omitempty"`
	Phases           []Phase      `json:"phases"`
	FinalAcceptance  []string     `json:"final_acceptance,omitempty"`
	QA               *QASignoff   `json:"qa_signoff,omitempty"`
}

// PhaseByID returns the phase with the given id, or nil.
func (p *ImplementationPlan) PhaseByID(id int) *Phase {
	for i := range p.Phases {
		if p.Phases[i].Phase == id {
			return &p.Phases[i]
		}
	}
	return nil
}

// ChunkByID returns the chunk with the given id and its phase, or nils.
func (p *ImplementationPlan) ChunkByID(id string) (*Phase, *Chunk) {
	for i := range p.Phases {
		for j := range p.Phases[i].Chunks {
			if p.Phases[i].Chunks[j].ID == id {
				return &p.Phases[i], &p.Phases[i].Chunks[j]
			}
		}
	}
	return nil, nil
}

// DependenciesMet reports whether every phase the given phase depends on
// exists and has all of its chunks completed. Unknown dependency ids count
// as unmet rather than failing, since plans may be edited by hand.
func (p *ImplementationPlan) DependenciesMet(phase *Phase) bool {
	for _, depID := range phase.DependsOn {
		dep := p.PhaseByID(depID)
		if dep == nil {
			return false
		}
		for i := range dep.Chunks {
			if dep.Chunks[i].Status != ChunkCompleted {
				return false
			}
		}
	}
	return true
}

// Complete reports whether every chunk in the plan reached a terminal status.
func (p *ImplementationPlan) Complete() bool {
	for i := range p.Phases {
		for j := range p.Phases[i].Chunks {
			if !p.Phases[i].Chunks[j].Terminal() {
				return false
			}
		}
	}
	return true
}

// QAState returns the current QA status, defaulting to not_started.
func (p *ImplementationPlan) QAState() QAStatus {
	if p.QA == nil {
		return QANotStarted
	}
	return p.QA.Status
}

// SetQAState records a QA status transition, allocating the QA section on
// first use.
func (p *ImplementationPlan) SetQAState(s QAStatus) {
	if p.QA == nil {
		p.QA = &QASignoff{}
	}
	p.QA.Status = s
}

// AppendQAIteration appends an iteration record to the QA history.
func (p *ImplementationPlan) AppendQAIteration(rec QAIteration) {
	if p.QA == nil {
		p.QA = &QASignoff{}
	}
	p.QA.Iterations = append(p.QA.Iterations, rec)
}
