// internal/debate/events.go
package debate

// EventType tags every outbound message sent to a participant connection.
type EventType string

const (
	EventWelcome          EventType = "welcome"
	EventQueueStatus      EventType = "queue_status"
	EventMatchFound       EventType = "match_found"
	EventLobbyCreated     EventType = "lobby_created"
	EventLobbyCancelled   EventType = "lobby_cancelled"
	EventLobbyError       EventType = "lobby_error"
	EventArgumentRecorded EventType = "argument_recorded"
	EventTurnTimedOut     EventType = "turn_timed_out"
	EventTurnChange       EventType = "turn_change"
	EventSessionComplete  EventType = "session_complete"
	EventOpponentLeft     EventType = "opponent_left"
	EventVerdict          EventType = "verdict"
	EventError            EventType = "error"
)

// OpponentProfile carries the public profile fields shown to the other side
// of a pairing.
type OpponentProfile struct {
	Handle string `json:"handle"`
	Rating int    `json:"rating"`
	Icon   string `json:"icon"`
	Banner string `json:"banner"`
}

// Event is the single outbound message envelope. Every event carries a Type;
// the remaining fields are populated per type and omitted otherwise, so each
// tag has a fixed wire schema.
type Event struct {
	Type EventType `json:"type"`

	ConnID    string `json:"connId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// queue_status
	Position int `json:"position,omitempty"`

	// lobby_created / lobby_cancelled / lobby_error
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	// match_found
	Opponent       *OpponentProfile `json:"opponent,omitempty"`
	Stance         Stance           `json:"stance,omitempty"`
	OpponentStance Stance           `json:"opponentStance,omitempty"`
	OpensFirst     bool             `json:"opensFirst,omitempty"`
	TopicSelector  int              `json:"topicSelector,omitempty"`
	Pace           Pace             `json:"pace,omitempty"`
	Category       Category         `json:"category,omitempty"`

	// argument_recorded / turn_timed_out / turn_change
	SenderID       string `json:"senderId,omitempty"`
	Content        string `json:"content,omitempty"`
	Elapsed        int    `json:"elapsed,omitempty"`
	Round          int    `json:"round,omitempty"`
	RoundCompleted bool   `json:"roundCompleted,omitempty"`
	TotalRounds    int    `json:"totalRounds,omitempty"`
	CurrentTurn    string `json:"currentTurn,omitempty"`

	// opponent_left
	Forfeit     bool `json:"forfeit,omitempty"`
	BeforeStart bool `json:"beforeStart,omitempty"`

	// verdict and anything else structured per tag
	Payload map[string]interface{} `json:"payload,omitempty"`
}
