package events

// Collector is an Emitter that buffers events for the current invocation so
// the host can hand them to the caller (or drop them on rollback).
type Collector struct {
	buffered []Event
}

// Emit implements the Emitter interface.
func (c *Collector) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.buffered = append(c.buffered, evt)
}

// Drain returns the buffered events and resets the collector.
func (c *Collector) Drain() []Event {
	if c == nil {
		return nil
	}
	out := c.buffered
	c.buffered = nil
	return out
}
