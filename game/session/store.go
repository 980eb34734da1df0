package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound means no session exists for the given key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionFull means both player slots are already occupied.
	ErrSessionFull = errors.New("session is full")

	// ErrInvalidState means the session is finished or abandoned and can
	// no longer be joined.
	ErrInvalidState = errors.New("session is not joinable")

	// ErrSessionNotActive means the session is not accepting moves.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrNotParticipant means the connection is not one of the session's
	// two players.
	ErrNotParticipant = errors.New("connection is not a session participant")

	// ErrNotYourTurn means the connection does not hold the current turn.
	ErrNotYourTurn = errors.New("not your turn")
)

// Store is the authoritative map of game sessions. A single mutex guards
// every session, which serializes all work touching the same game id:
// two concurrent joins on a waiting session resolve to exactly one
// player2, and two concurrent moves resolve to exactly one accepted move.
// The turn flip inside RecordMove is the sole ordering authority between
// the two participants.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*GameSession
	byConn   map[string]string // connection id -> game id
	ttl      time.Duration
}

// NewStore creates a store whose sessions expire ttl after their last
// mutation.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*GameSession),
		byConn:   make(map[string]string),
		ttl:      ttl,
	}
}

// CreateOrJoin places the connection into the session for gameID.
//
// With no existing session the caller becomes player1 and the session
// starts waiting. Joining a waiting session fills the player2 slot and
// activates the session with player1 to move. A participant re-sending
// join gets the current session back unchanged. A third connection gets
// ErrSessionFull; joining a finished or abandoned session gets
// ErrInvalidState.
func (st *Store) CreateOrJoin(gameID, connectionID string) (GameSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	sess, exists := st.sessions[gameID]
	if !exists {
		sess = &GameSession{
			GameID:    gameID,
			Player1:   connectionID,
			Status:    StatusWaiting,
			Turn:      TurnPlayer1,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(st.ttl),
		}
		st.sessions[gameID] = sess
		st.byConn[connectionID] = gameID
		return *sess, nil
	}

	if sess.Status.Terminal() {
		return GameSession{}, ErrInvalidState
	}

	// Re-join by an existing participant is a no-op.
	if sess.Participant(connectionID) {
		return *sess, nil
	}

	if sess.Status != StatusWaiting || sess.Player2 != "" {
		return GameSession{}, ErrSessionFull
	}

	sess.Player2 = connectionID
	sess.Status = StatusActive
	sess.UpdatedAt = now
	sess.ExpiresAt = now.Add(st.ttl)
	st.byConn[connectionID] = gameID

	return *sess, nil
}

// RecordMove validates that the connection is the current turn holder of
// an active session, then flips the turn and records the payload as the
// session's last move. The payload itself is opaque; rule legality is the
// client-side engine's concern.
func (st *Store) RecordMove(gameID, connectionID string, payload json.RawMessage) (GameSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, exists := st.sessions[gameID]
	if !exists {
		return GameSession{}, ErrSessionNotFound
	}
	if sess.Status != StatusActive {
		return GameSession{}, ErrSessionNotActive
	}
	if !sess.Participant(connectionID) {
		return GameSession{}, ErrNotParticipant
	}
	if sess.Role(connectionID) != sess.Turn {
		return GameSession{}, ErrNotYourTurn
	}

	now := time.Now()
	if sess.Turn == TurnPlayer1 {
		sess.Turn = TurnPlayer2
	} else {
		sess.Turn = TurnPlayer1
	}
	sess.Moves++
	sess.LastMove = payload
	sess.UpdatedAt = now
	sess.ExpiresAt = now.Add(st.ttl)

	return *sess, nil
}

// EndSession moves the session into a terminal status and reports
// whether this call performed the transition. Ending an already terminal
// session is a no-op returning false, so of the racing disconnect and
// sweeper paths exactly one observes the transition and notifies the
// peer.
func (st *Store) EndSession(gameID string, status Status) (bool, error) {
	if !status.Terminal() {
		return false, ErrInvalidState
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, exists := st.sessions[gameID]
	if !exists {
		return false, ErrSessionNotFound
	}
	if sess.Status.Terminal() {
		return false, nil
	}

	sess.Status = status
	sess.UpdatedAt = time.Now()
	return true, nil
}

// FindByConnection locates the session a connection participates in.
// Used on disconnect to find the peer to notify.
func (st *Store) FindByConnection(connectionID string) (GameSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	gameID, ok := st.byConn[connectionID]
	if !ok {
		return GameSession{}, ErrSessionNotFound
	}
	sess, exists := st.sessions[gameID]
	if !exists {
		return GameSession{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Get returns a copy of the session for gameID.
func (st *Store) Get(gameID string) (GameSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, exists := st.sessions[gameID]
	if !exists {
		return GameSession{}, ErrSessionNotFound
	}
	return *sess, nil
}

// List returns copies of all sessions, terminal ones included until the
// sweeper reclaims them.
func (st *Store) List() []GameSession {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]GameSession, 0, len(st.sessions))
	for _, sess := range st.sessions {
		out = append(out, *sess)
	}
	return out
}

// ExpiredBefore returns copies of sessions whose TTL elapsed before the
// given time.
func (st *Store) ExpiredBefore(now time.Time) []GameSession {
	st.mu.Lock()
	defer st.mu.Unlock()

	var expired []GameSession
	for _, sess := range st.sessions {
		if sess.Expired(now) {
			expired = append(expired, *sess)
		}
	}
	return expired
}

// Delete removes the session and its connection index entries. An index
// entry is only removed if it still points at this game: a connection
// that finished here and joined another game keeps its newer mapping.
func (st *Store) Delete(gameID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, exists := st.sessions[gameID]
	if !exists {
		return ErrSessionNotFound
	}

	if sess.Player1 != "" && st.byConn[sess.Player1] == gameID {
		delete(st.byConn, sess.Player1)
	}
	if sess.Player2 != "" && st.byConn[sess.Player2] == gameID {
		delete(st.byConn, sess.Player2)
	}
	delete(st.sessions, gameID)
	return nil
}

// Count returns the number of sessions currently held.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
