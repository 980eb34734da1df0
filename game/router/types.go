package router

import "encoding/json"

// Client → server message kinds.
const (
	KindJoin      = "join"
	KindMove      = "move"
	KindEnd       = "end"
	KindHeartbeat = "heartbeat"
)

// Server → client push frame kinds.
const (
	KindConnected            = "connected"
	KindOpponentFound        = "opponent-found"
	KindOpponentMove         = "opponent-move"
	KindOpponentDisconnected = "opponent-disconnected"
	KindGameEnded            = "game-ended"
	KindError                = "error"
)

// Error codes carried by error frames. Stable so clients can branch
// without matching Go error strings.
const (
	CodeMalformed        = "malformed"
	CodeMissingGameID    = "missing_game_id"
	CodeUnknownKind      = "unknown_kind"
	CodeSessionFull      = "session_full"
	CodeInvalidState     = "invalid_state"
	CodeSessionNotActive = "session_not_active"
	CodeNotParticipant   = "not_participant"
	CodeNotYourTurn      = "not_your_turn"
	CodeNotFound         = "not_found"
)

// Envelope is the JSON message exchanged over a connection, in both
// directions. Payload is opaque to the router; for moves it carries
// whatever the client-side engine produced (e.g. coordinates). The
// connection id is server-assigned and echoed on push frames, never
// trusted from the client.
type Envelope struct {
	Kind         string          `json:"kind"`
	GameID       string          `json:"gameId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// MatchInfo is the payload of an opponent-found frame, telling each
// participant which seat they hold and who moves first.
type MatchInfo struct {
	Role string `json:"role"`
	Turn string `json:"turn"`
}

// Delivery is the outcome of a push attempt.
type Delivery int

const (
	// Delivered means the payload was handed to the connection's writer.
	Delivered Delivery = iota

	// Gone means the connection no longer exists. This is a normal,
	// expected outcome and is handled like a disconnect notification.
	Gone
)

// PushGateway delivers a payload to a specific live connection.
type PushGateway interface {
	Send(connectionID string, payload []byte) Delivery
}
