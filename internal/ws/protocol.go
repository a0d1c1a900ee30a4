package ws

import "cardtable/internal/session"

// Client -> server messages. Type selects the action; unused fields are
// ignored.
type clientMessage struct {
	Type      string `json:"type"`
	Nickname  string `json:"nickname,omitempty"`
	SessionID int    `json:"session_id,omitempty"`
	Capacity  int    `json:"capacity,omitempty"`

	// place
	Card int `json:"card,omitempty"`
	Row  int `json:"row,omitempty"`
	Col  int `json:"col,omitempty"`

	// draw
	FromDeck bool `json:"from_deck,omitempty"`
	Pile     int  `json:"pile,omitempty"`
}

// Result acknowledges the triggering request on the same connection.
type resultMessage struct {
	Type      string            `json:"type"`
	Op        string            `json:"op"`
	Ok        bool              `json:"ok"`
	Error     string            `json:"error,omitempty"`
	SessionID int               `json:"session_id,omitempty"`
	Snapshot  *session.Snapshot `json:"snapshot,omitempty"`
	Points    *int              `json:"points,omitempty"`
}

// Every session event is pushed as-is inside an envelope.
type eventMessage struct {
	Type  string        `json:"type"`
	Event session.Event `json:"event"`
}
