package events

import (
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicChunk, 10)

	event := ChunkClaimedEvent{
		ID:        "chunk-1",
		WorkerID:  "worker-1",
		PhaseID:   1,
		Branch:    "swarm/worker-1",
		Timestamp: time.Now(),
	}

	bus.Publish(TopicChunk, event)

	select {
	case received := <-ch:
		if received.ChunkID() != "chunk-1" {
			t.Errorf("expected chunk ID 'chunk-1', got '%s'", received.ChunkID())
		}
		if received.EventType() != EventTypeChunkClaimed {
			t.Errorf("expected event type '%s', got '%s'", EventTypeChunkClaimed, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies multiple subscribers receive the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicChunk, 10)
	ch2 := bus.Subscribe(TopicChunk, 10)

	event := ChunkReleasedEvent{
		ID:        "chunk-2",
		WorkerID:  "worker-1",
		Success:   true,
		Duration:  100 * time.Millisecond,
		Timestamp: time.Now(),
	}

	bus.Publish(TopicChunk, event)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.ChunkID() != "chunk-2" {
				t.Errorf("subscriber %d: expected chunk ID 'chunk-2', got '%s'", i+1, received.ChunkID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestSubscribeAll verifies a SubscribeAll channel receives events from
// every topic.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)

	bus.Publish(TopicChunk, ChunkClaimedEvent{ID: "c1", Timestamp: time.Now()})
	bus.Publish(TopicQA, QAIterationEvent{Iteration: 1, Verdict: "rejected", Source: "reviewer", Timestamp: time.Now()})

	types := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			types[e.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for events")
		}
	}

	if !types[EventTypeChunkClaimed] || !types[EventTypeQAIteration] {
		t.Errorf("expected both event types, got %v", types)
	}
}

// TestPublishAfterClose verifies publishing to a closed bus does not panic.
func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicMerge, 1)
	bus.Close()

	bus.Publish(TopicMerge, MergeResultEvent{ID: "c1", Merged: true, Timestamp: time.Now()})

	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed")
	}
}

// TestFullSubscriberDropsEvent verifies non-blocking publish drops events
// when a subscriber's buffer is full.
func TestFullSubscriberDropsEvent(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicChunk, 1)

	bus.Publish(TopicChunk, ChunkClaimedEvent{ID: "c1", Timestamp: time.Now()})
	bus.Publish(TopicChunk, ChunkClaimedEvent{ID: "c2", Timestamp: time.Now()}) // dropped

	first := <-ch
	if first.ChunkID() != "c1" {
		t.Errorf("expected 'c1', got '%s'", first.ChunkID())
	}

	select {
	case e := <-ch:
		t.Errorf("expected no further events, got %s", e.ChunkID())
	case <-time.After(50 * time.Millisecond):
	}
}
