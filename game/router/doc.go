// Package router implements the per-connection message state machine.
//
// Each connection moves connecting → open → closed. HandleConnect
// registers the connection, HandleMessage dispatches join/move/end/
// heartbeat traffic while it is open, and HandleDisconnect tears it
// down. Moves are relayed to the opponent only, never echoed to the
// sender; validation errors go back to the sender only, as error frames,
// with no state mutation.
//
// The router holds no ordering logic of its own. Messages from one
// connection are processed in arrival order by the transport, and the
// session store's atomic turn flip is the sole ordering authority
// between the two sides of a game.
//
// Push delivery failures (Gone) are a normal outcome: the target is
// treated as implicitly disconnected and flows through the same cleanup
// as an explicit disconnect event.
package router
