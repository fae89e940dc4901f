package events

import (
	"sync"

	"stakelend/core/types"
)

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
	// Event renders the broadcastable form.
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the index or the
// websocket stream).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events emitted during a transition so they can be released
// only once the transition commits.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	return append([]Event(nil), b.events...)
}

// Flush forwards the buffered events to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if dst != nil {
		for _, e := range b.events {
			dst.Emit(e)
		}
	}
	b.events = nil
}

// Bus fans events out to every subscribed emitter.
type Bus struct {
	mu   sync.RWMutex
	subs []Emitter
}

// Subscribe adds an emitter to the fan-out set.
func (b *Bus) Subscribe(e Emitter) {
	if e == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, e)
	b.mu.Unlock()
}

// Emit implements the Emitter interface.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.Emit(e)
	}
}
