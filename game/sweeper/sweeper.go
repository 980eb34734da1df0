package sweeper

import (
	"context"
	"log"
	"time"

	"chessrelay/game/registry"
	"chessrelay/game/session"
)

// Reaper tears down expired state the same way live events would: a
// reclaimed connection goes through the disconnect path (registry
// removal, session abandonment, best-effort peer notification), and a
// session that idled past its TTL is abandoned with its participants
// notified before the row is deleted. The router implements it.
type Reaper interface {
	HandleDisconnect(connectionID string)
	HandleSessionExpiry(gameID string)
}

// Sweeper reclaims expired connection records and game sessions on a
// fixed interval. It is the safety net for missed disconnect events:
// a connection that vanished without a close frame is reclaimed once
// its TTL elapses, and its peer still gets notified.
type Sweeper struct {
	registry *registry.Registry
	store    *session.Store
	reaper   Reaper
	interval time.Duration
}

// New creates a sweeper over the given registry and store.
func New(reg *registry.Registry, store *session.Store, reaper Reaper, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: reg,
		store:    store,
		reaper:   reaper,
		interval: interval,
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conns, sessions := s.SweepOnce(time.Now())
			if conns > 0 || sessions > 0 {
				log.Printf("Swept %d expired connections, %d expired sessions", conns, sessions)
			}
		}
	}
}

// SweepOnce performs a single pass. Expired connections are reclaimed
// through the disconnect path, so active sessions abandon and peers get
// a best-effort notification. An expired session that is still live
// (idle past its TTL but with both players connected) is abandoned
// through the expiry path before its row is deleted. A second pass with
// no new activity is a no-op.
func (s *Sweeper) SweepOnce(now time.Time) (conns, sessions int) {
	for _, rec := range s.registry.ExpiredBefore(now) {
		s.reaper.HandleDisconnect(rec.ConnectionID)
		conns++
	}

	for _, sess := range s.store.ExpiredBefore(now) {
		if !sess.Status.Terminal() {
			s.reaper.HandleSessionExpiry(sess.GameID)
		}
		if err := s.store.Delete(sess.GameID); err == nil {
			sessions++
		}
	}

	return conns, sessions
}
