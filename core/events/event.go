package events

// Event is a structured record of a minting-program state change: code
// registrations, box mints, box opens, reward claims and governance updates
// all emit one.
type Event interface {
	EventType() string
}

// Emitter receives the events produced while an operation executes. The node
// hands each engine an emitter before invoking it; collected events are only
// published when the operation commits.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding everything. Engines fall
// back to it when no emitter has been wired.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
