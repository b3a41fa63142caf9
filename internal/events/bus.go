package events

import "sync"

// EventBus fans build events out to subscribers, per topic or across all
// topics. Publishing never blocks: a subscriber that falls behind loses
// events rather than stalling the build.
type EventBus struct {
	mu     sync.RWMutex
	topics map[string][]chan Event
	all    []chan Event
	closed bool
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{topics: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving events published to topic. bufSize
// defaults to 256 when non-positive. Subscribing to a closed bus yields an
// already-closed channel.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := b.newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.topics[topic] = append(b.topics[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := b.newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.all = append(b.all, ch)
	return ch
}

// Publish delivers event to the topic's subscribers and to all-topic
// subscribers. Full buffers drop the event for that subscriber; a closed bus
// swallows it.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.topics[topic] {
		offer(ch, event)
	}
	for _, ch := range b.all {
		offer(ch, event)
	}
}

// Close closes every subscriber channel. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.topics {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

func (b *EventBus) newChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	return make(chan Event, bufSize)
}

func offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
	}
}
