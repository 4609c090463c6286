package types

// Event is the wire form of an engine event: the referral, mint, reward and
// claim engines flatten their typed events into this shape before hand-off to
// subscribers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
