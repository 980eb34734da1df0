package session

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a game session.
type Status string

const (
	// StatusWaiting means one player has joined and the session is open
	// for a second.
	StatusWaiting Status = "waiting"

	// StatusActive means both players are present and moves may flow.
	StatusActive Status = "active"

	// StatusFinished means the game ended normally.
	StatusFinished Status = "finished"

	// StatusAbandoned means a participant disconnected mid-game.
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Turn identifies which participant may submit the next move.
type Turn string

const (
	TurnPlayer1 Turn = "player1"
	TurnPlayer2 Turn = "player2"
)

// GameSession pairs two connections into one ongoing game. The store is
// the sole authority for its fields; clients only ever see read-only
// mirrors pushed over the wire.
type GameSession struct {
	GameID    string          `json:"game_id"`
	Player1   string          `json:"player1,omitempty"` // connection id
	Player2   string          `json:"player2,omitempty"` // connection id
	Status    Status          `json:"status"`
	Turn      Turn            `json:"turn"`
	Moves     int             `json:"moves"`
	LastMove  json.RawMessage `json:"last_move,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Participant reports whether the connection occupies one of the two
// player slots.
func (s GameSession) Participant(connectionID string) bool {
	return connectionID != "" &&
		(connectionID == s.Player1 || connectionID == s.Player2)
}

// Opponent returns the other participant's connection id, or "" when the
// connection is not a participant or has no opponent yet.
func (s GameSession) Opponent(connectionID string) string {
	switch connectionID {
	case s.Player1:
		return s.Player2
	case s.Player2:
		return s.Player1
	}
	return ""
}

// Role returns the turn value held by the given participant.
func (s GameSession) Role(connectionID string) Turn {
	if connectionID == s.Player2 {
		return TurnPlayer2
	}
	return TurnPlayer1
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s GameSession) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
