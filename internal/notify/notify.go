// Package notify provides the in-process event feed rendering layers
// subscribe to: refresh events after every persisted mutation, sync pulses
// when the shared file changes under us, and user-visible notices for storage
// failures.
package notify

import (
	"sync"
	"time"
)

// EventType identifies the kind of event
type EventType string

const (
	// EventRefresh tells views to re-read the category list and redraw.
	EventRefresh EventType = "refresh"
	// EventSyncPulse tells views to show a transient sync indication because
	// another process modified the shared file.
	EventSyncPulse EventType = "sync_pulse"
	// EventNotice carries a non-blocking user-visible notice, typically a
	// storage failure converted at the boundary.
	EventNotice EventType = "notice"
)

// Event is one broadcast item.
type Event struct {
	Type      EventType
	Message   string // user-visible text, set for EventNotice
	Timestamp time.Time
}

// Broadcaster fans events out to subscribers over channels. Delivery is
// non-blocking: a subscriber that stops draining loses events rather than
// stalling the mutation path.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel together
// with an unsubscribe function. The channel is buffered; it is closed by
// unsubscribe or Close.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broadcaster) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Refresh broadcasts a refresh event.
func (b *Broadcaster) Refresh() {
	b.Publish(Event{Type: EventRefresh})
}

// SyncPulse broadcasts a sync indication.
func (b *Broadcaster) SyncPulse() {
	b.Publish(Event{Type: EventSyncPulse})
}

// Notice broadcasts a user-visible notice.
func (b *Broadcaster) Notice(message string) {
	b.Publish(Event{Type: EventNotice, Message: message})
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Further publishes are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
