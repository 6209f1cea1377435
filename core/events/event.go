package events

import "cdpchain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves into the generic
// attribute form stored in receipts and served to indexers.
type Typed interface {
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

// Sink receives rendered events. *state.Manager implements it with a journaled
// buffer so events vanish together with reverted state.
type Sink interface {
	AppendEvent(*types.Event)
}

// SinkEmitter renders typed events into a Sink.
type SinkEmitter struct {
	sink Sink
}

// NewSinkEmitter wraps sink in an Emitter.
func NewSinkEmitter(sink Sink) *SinkEmitter {
	return &SinkEmitter{sink: sink}
}

// Emit implements the Emitter interface. Events that cannot render themselves
// are recorded with their type only.
func (e *SinkEmitter) Emit(evt Event) {
	if e == nil || e.sink == nil || evt == nil {
		return
	}
	if typed, ok := evt.(Typed); ok {
		if rendered := typed.Event(); rendered != nil {
			e.sink.AppendEvent(rendered)
			return
		}
	}
	e.sink.AppendEvent(&types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
}
