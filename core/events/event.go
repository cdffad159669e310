package events

import "github.com/propsproject/props-protocol-sub000/core/types"

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render themselves as a
// broadcastable key/value record.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
