package session

// Kind identifies a session event on the internal bus. Transport adapters
// translate these to their own wire format; the core emits exactly one set.
type Kind string

const (
	EventPlayerJoined       Kind = "player_joined"
	EventPlayerReady        Kind = "player_ready"
	EventPlayerLeft         Kind = "player_left"
	EventPlayerDisconnected Kind = "player_disconnected"
	EventPlayerReconnected  Kind = "player_reconnected"
	EventSessionStarted     Kind = "session_started"
	EventTurnAdvanced       Kind = "turn_advanced"
	EventFinalRound         Kind = "final_round"
	EventSessionEnded       Kind = "session_ended"
	EventGracePeriod        Kind = "grace_period"
	EventCardPlaced         Kind = "card_placed"
	EventCardDrawn          Kind = "card_drawn"
	EventPointsAdded        Kind = "points_added"

	// EventInvalidMove is delivered to the acting player only, never broadcast.
	EventInvalidMove Kind = "invalid_move"
)

// PlayerView is the per-player slice of a snapshot.
type PlayerView struct {
	Nickname  string `json:"nickname"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	Score     int    `json:"score"`
}

// Snapshot is the compact session state attached to every event so clients
// can render without a follow-up query.
type Snapshot struct {
	SessionID int          `json:"session_id"`
	Status    string       `json:"status"`
	Capacity  int          `json:"capacity"`
	Players   []PlayerView `json:"players"`
	Current   string       `json:"current_player,omitempty"`
}

// Event is one entry in a session's ordered event sequence. Seq is assigned
// under the session lock, so every listener observes the same order.
type Event struct {
	Seq      int64          `json:"seq"`
	Kind     Kind           `json:"kind"`
	ServerTS int64          `json:"server_ts"`
	Snapshot Snapshot       `json:"snapshot"`
	Data     map[string]any `json:"data,omitempty"`
}
