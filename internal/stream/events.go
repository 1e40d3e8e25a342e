// Package stream serializes orchestrator lifecycle into an ordered event
// sequence and delivers it to a single subscriber per session.
package stream

// EventType tags one progress event variant.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventProgress       EventType = "progress"
	EventToolsCompleted EventType = "tools_completed"
	EventContent        EventType = "content"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is one entry in a session's event sequence. Events marshal to the
// wire protocol directly: one JSON object per line.
type Event struct {
	Type           EventType      `json:"type"`
	Tools          []string       `json:"tools,omitempty"`
	Message        string         `json:"message,omitempty"`
	Chunk          string         `json:"chunk,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Terminal reports whether the event ends the sequence for its session.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
