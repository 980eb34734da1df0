// Package session provides the authoritative game session store.
//
// A session pairs two connections into one ongoing game. The store owns
// every session's membership, status, and turn; no other component
// mutates them. Sessions move waiting → active → finished, or from any
// state to abandoned when a participant drops.
//
// Atomicity:
//
// CreateOrJoin and RecordMove are atomic with respect to a session's
// current state. Concurrent joins on the same waiting session admit
// exactly one player2, and concurrent moves accept exactly one per turn.
// This is the central correctness property of the whole core; the turn
// flip performed by RecordMove is the only ordering guarantee between
// the two sides of a game.
//
// Cleanup:
//
// Sessions carry a TTL refreshed on mutation. The sweeper reclaims
// expired sessions; disconnects abandon active ones immediately.
package session
