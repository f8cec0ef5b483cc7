package events

import "trancheledger/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Describer is implemented by events that can render themselves as a typed
// attribute map for indexers and history storage.
type Describer interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. history, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans every event out to each non-nil emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps emitted events in memory. Tests use it to assert on side
// effects.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(evt Event) { r.Events = append(r.Events, evt) }

// Types returns the type of every recorded event.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, evt := range r.Events {
		out[i] = evt.EventType()
	}
	return out
}
