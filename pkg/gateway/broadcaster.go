package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthFailure is published after the gateway cleared the session because the
// server rejected its credentials.
type AuthFailure struct {
	Seq        int64
	Method     string
	Path       string
	HTTPStatus int
	Code       int
	Message    string
	RequestID  string
	// Cleared is false when another in-flight request already cleared the session.
	Cleared bool
	At      time.Time
}

// EventBroadcaster fans AuthFailure events out to subscribers
type EventBroadcaster struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(AuthFailure)
	seq      int64
}

// NewEventBroadcaster creates a broadcaster with no subscribers
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{handlers: make(map[uint64]func(AuthFailure))}
}

// Subscribe registers fn and returns a function that removes it
func (b *EventBroadcaster) Subscribe(fn func(AuthFailure)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Broadcast delivers evt to every subscriber synchronously
func (b *EventBroadcaster) Broadcast(evt AuthFailure) {
	if evt.Seq == 0 {
		evt.Seq = atomic.AddInt64(&b.seq, 1)
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]func(AuthFailure), 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}
