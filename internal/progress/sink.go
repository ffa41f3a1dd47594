package progress

import "context"

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// pipeline can remain agnostic about how events are delivered.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) {
	f(evt)
}

// Multi fans each event out to every non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	var live []Emitter
	for _, e := range emitters {
		if e != nil {
			live = append(live, e)
		}
	}
	return multi(live)
}

type multi []Emitter

func (m multi) Emit(evt Event) {
	for _, e := range m {
		e.Emit(evt)
	}
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})
