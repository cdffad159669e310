package events

import (
	"sync"

	"github.com/propsproject/props-protocol-sub000/core/types"
)

// Buffer collects events raised during a unit of work. Nothing leaves the
// buffer until the caller drains it, so events of an aborted call can simply
// be dropped with Reset.
type Buffer struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements Emitter. Events without a payload are recorded with their
// type only.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	var rendered *types.Event
	if payload, ok := evt.(Payload); ok {
		rendered = payload.Event().Clone()
	}
	if rendered == nil {
		rendered = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	b.mu.Lock()
	b.events = append(b.events, rendered)
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []*types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Reset discards every buffered event.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
