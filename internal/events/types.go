package events

import (
	"time"
)

// Event is the base interface for all build events.
type Event interface {
	EventType() string
	ChunkID() string
}

// Topic constants
const (
	TopicChunk = "chunk"
	TopicMerge = "merge"
	TopicQA    = "qa"
)

// Event type constants
const (
	EventTypeChunkClaimed  = "chunk.claimed"
	EventTypeChunkReleased = "chunk.released"
	EventTypeMergeResult   = "merge.result"
	EventTypeQAIteration   = "qa.iteration"
	EventTypeQAEscalated   = "qa.escalated"
)

// ChunkClaimedEvent is published when a worker claims a chunk.
type ChunkClaimedEvent struct {
	ID        string
	WorkerID  string
	PhaseID   int
	Branch    string
	Timestamp time.Time
}

func (e ChunkClaimedEvent) EventType() string { return EventTypeChunkClaimed }
func (e ChunkClaimedEvent) ChunkID() string   { return e.ID }

// ChunkReleasedEvent is published when a worker releases a chunk.
type ChunkReleasedEvent struct {
	ID        string
	WorkerID  string
	Success   bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e ChunkReleasedEvent) EventType() string { return EventTypeChunkReleased }
func (e ChunkReleasedEvent) ChunkID() string   { return e.ID }

// MergeResultEvent is published after a worker branch is merged (or fails
// to merge) into the staging sandbox.
type MergeResultEvent struct {
	ID        string // chunk id whose branch was merged
	Branch    string
	Merged    bool
	Timestamp time.Time
}

func (e MergeResultEvent) EventType() string { return EventTypeMergeResult }
func (e MergeResultEvent) ChunkID() string   { return e.ID }

// QAIterationEvent is published after each review or fix iteration.
type QAIterationEvent struct {
	Iteration int
	Verdict   string
	Source    string
	Issues    int
	Timestamp time.Time
}

func (e QAIterationEvent) EventType() string { return EventTypeQAIteration }
func (e QAIterationEvent) ChunkID() string   { return "" }

// QAEscalatedEvent is published when the QA loop hands the build to a human.
type QAEscalatedEvent struct {
	Reason    string
	Timestamp time.Time
}

func (e QAEscalatedEvent) EventType() string { return EventTypeQAEscalated }
func (e QAEscalatedEvent) ChunkID() string   { return "" }
