package registry

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrDuplicateConnection means a connection id collided with a live
	// record. The caller must treat this as a logic error and close the
	// offending connection rather than overwrite the existing record.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrConnectionNotFound means the connection is unknown, typically
	// because it was already removed or reclaimed.
	ErrConnectionNotFound = errors.New("connection not found")
)

// ConnectionRecord tracks one live client connection.
type ConnectionRecord struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id,omitempty"`
	JoinedGameID string    `json:"joined_game_id,omitempty"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record's TTL has elapsed at the given time.
func (r ConnectionRecord) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Registry is the authoritative map of live connections. All methods are
// safe for concurrent use. Accessors return copies so callers never hold a
// reference into the registry's own state.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*ConnectionRecord
	ttl   time.Duration
}

// NewRegistry creates a registry whose records expire ttl after their last
// observed activity.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		conns: make(map[string]*ConnectionRecord),
		ttl:   ttl,
	}
}

// Register creates a record for a newly opened connection. The user id is
// optional; anonymous connections pass "".
func (r *Registry) Register(connectionID, userID string) (ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connectionID]; exists {
		return ConnectionRecord{}, ErrDuplicateConnection
	}

	now := time.Now()
	rec := &ConnectionRecord{
		ConnectionID: connectionID,
		UserID:       userID,
		LastSeenAt:   now,
		ExpiresAt:    now.Add(r.ttl),
	}
	r.conns[connectionID] = rec

	return *rec, nil
}

// Touch refreshes the record's last-seen time and pushes out its expiry.
// A ErrConnectionNotFound result means the connection was already removed;
// callers treat it as "already disconnected".
func (r *Registry) Touch(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.conns[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}

	now := time.Now()
	rec.LastSeenAt = now
	rec.ExpiresAt = now.Add(r.ttl)
	return nil
}

// SetJoinedGame associates the connection with a game session.
func (r *Registry) SetJoinedGame(connectionID, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.conns[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}

	rec.JoinedGameID = gameID
	return nil
}

// Remove deletes the record and returns its last state so callers can
// locate and notify the peer.
func (r *Registry) Remove(connectionID string) (ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.conns[connectionID]
	if !exists {
		return ConnectionRecord{}, ErrConnectionNotFound
	}

	delete(r.conns, connectionID)
	return *rec, nil
}

// Lookup returns a copy of the record for the given connection.
func (r *Registry) Lookup(connectionID string) (ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.conns[connectionID]
	if !exists {
		return ConnectionRecord{}, ErrConnectionNotFound
	}
	return *rec, nil
}

// ExpiredBefore returns copies of every record whose TTL elapsed before the
// given time. The records are not removed; the sweeper drives removal
// through the normal disconnect path so peers get notified.
func (r *Registry) ExpiredBefore(now time.Time) []ConnectionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []ConnectionRecord
	for _, rec := range r.conns {
		if rec.Expired(now) {
			expired = append(expired, *rec)
		}
	}
	return expired
}

// List returns copies of all live records.
func (r *Registry) List() []ConnectionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionRecord, 0, len(r.conns))
	for _, rec := range r.conns {
		out = append(out, *rec)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
