package router

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"chessrelay/game/registry"
	"chessrelay/game/session"
	"chessrelay/storage"
)

// Router dispatches inbound messages to the registry and session store
// and fans pushes out through the gateway. It holds no state of its own:
// the registry and store are the only shared mutable state, and every
// mutation goes through their contracted operations.
type Router struct {
	registry *registry.Registry
	store    *session.Store
	gateway  PushGateway
	archive  *storage.Archive // nil-safe, may be nil
}

// New creates a router. The archive may be nil when no database is
// configured.
func New(reg *registry.Registry, store *session.Store, gateway PushGateway, archive *storage.Archive) *Router {
	return &Router{
		registry: reg,
		store:    store,
		gateway:  gateway,
		archive:  archive,
	}
}

// HandleConnect registers a newly opened connection and pushes its
// server-assigned id back to the client. A duplicate connection id is a
// logic error: the existing record is left untouched and the caller must
// close the new connection.
func (rt *Router) HandleConnect(connectionID, userID string) error {
	if _, err := rt.registry.Register(connectionID, userID); err != nil {
		log.Printf("ERROR: [CONNECT] conn=%s rejected: %v", connectionID, err)
		return err
	}

	rt.push(connectionID, Envelope{
		Kind:         KindConnected,
		ConnectionID: connectionID,
	})
	return nil
}

// HandleMessage processes one inbound message from an open connection.
// Any traffic refreshes the connection's TTL. Malformed messages are
// rejected with an error frame and mutate nothing.
func (rt *Router) HandleMessage(connectionID string, data []byte) {
	if err := rt.registry.Touch(connectionID); err != nil {
		// Record already reclaimed; the connection is as good as closed.
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		rt.sendError(connectionID, "", CodeMalformed)
		return
	}

	switch env.Kind {
	case KindHeartbeat:
		// Touch above is the whole effect.
	case KindJoin:
		rt.handleJoin(connectionID, env)
	case KindMove:
		rt.handleMove(connectionID, env)
	case KindEnd:
		rt.handleEnd(connectionID, env)
	default:
		rt.sendError(connectionID, env.GameID, CodeUnknownKind)
	}
}

// HandleDisconnect tears down a closed connection. If it was part of a
// non-terminal session, the session is abandoned and the remaining peer
// of an active game gets exactly one opponent-disconnected push. The
// sweeper drives reclamation of expired connections through this same
// path, so missed disconnect events self-heal.
func (rt *Router) HandleDisconnect(connectionID string) {
	if _, err := rt.registry.Remove(connectionID); err != nil {
		// Already removed; continue so session cleanup still runs.
		if !errors.Is(err, registry.ErrConnectionNotFound) {
			log.Printf("[DROP] conn=%s remove failed: %v", connectionID, err)
		}
	}

	sess, err := rt.store.FindByConnection(connectionID)
	if err != nil || sess.Status.Terminal() {
		return
	}

	wasActive := sess.Status == session.StatusActive
	ended, err := rt.store.EndSession(sess.GameID, session.StatusAbandoned)
	if err != nil || !ended {
		// Another teardown path got there first and owns the peer
		// notification.
		return
	}
	rt.archiveCompletion(sess.GameID, session.StatusAbandoned, sess.Moves)
	log.Printf("[DROP] conn=%s game=%s abandoned", connectionID, sess.GameID)

	if !wasActive {
		return
	}

	opponent := sess.Opponent(connectionID)
	if opponent == "" {
		return
	}
	frame := Envelope{
		Kind:         KindOpponentDisconnected,
		GameID:       sess.GameID,
		ConnectionID: opponent,
	}
	if rt.gateway.Send(opponent, mustMarshal(frame)) == Gone {
		// Peer dropped too; clean it up the same way. The session is
		// terminal now, so this bottoms out immediately.
		rt.HandleDisconnect(opponent)
	}
}

// HandleSessionExpiry abandons a session whose TTL elapsed while it was
// still live. Each participant that is still connected gets one
// opponent-disconnected push and its game association is cleared; the
// sweeper deletes the row afterwards.
func (rt *Router) HandleSessionExpiry(gameID string) {
	sess, err := rt.store.Get(gameID)
	if err != nil || sess.Status.Terminal() {
		return
	}

	ended, err := rt.store.EndSession(gameID, session.StatusAbandoned)
	if err != nil || !ended {
		return
	}
	rt.archiveCompletion(gameID, session.StatusAbandoned, sess.Moves)
	log.Printf("[EXPIRE] game=%s abandoned after idle TTL", gameID)

	wasActive := sess.Status == session.StatusActive
	for _, participant := range []string{sess.Player1, sess.Player2} {
		if participant == "" {
			continue
		}
		rt.registry.SetJoinedGame(participant, "")
		if !wasActive {
			// A lone waiter has no opponent to be told about.
			continue
		}
		rt.pushOrReap(participant, Envelope{
			Kind:         KindOpponentDisconnected,
			GameID:       gameID,
			ConnectionID: participant,
		})
	}
}

// handleJoin creates or joins the session for the requested game. When
// the join activates the session, both participants learn their seat and
// the starting turn via opponent-found frames. Joining as player1 is
// silent; the client waits for an opponent.
func (rt *Router) handleJoin(connectionID string, env Envelope) {
	if env.GameID == "" {
		rt.sendError(connectionID, "", CodeMissingGameID)
		return
	}

	sess, err := rt.store.CreateOrJoin(env.GameID, connectionID)
	if err != nil {
		rt.sendError(connectionID, env.GameID, errorCode(err))
		return
	}

	if err := rt.registry.SetJoinedGame(connectionID, env.GameID); err != nil {
		// Connection vanished between touch and join; roll nothing back,
		// disconnect handling will abandon the session.
		return
	}

	log.Printf("[JOIN] conn=%s game=%s status=%s", connectionID, sess.GameID, sess.Status)
	rt.archiveGame(sess)

	if sess.Status != session.StatusActive {
		return
	}

	for _, participant := range []string{sess.Player1, sess.Player2} {
		info, _ := json.Marshal(MatchInfo{
			Role: string(sess.Role(participant)),
			Turn: string(sess.Turn),
		})
		rt.pushOrReap(participant, Envelope{
			Kind:         KindOpponentFound,
			GameID:       sess.GameID,
			Payload:      info,
			ConnectionID: participant,
		})
	}
}

// handleMove validates turn ownership through the store and relays the
// payload to the opponent only. The sender never sees its own move
// echoed back; validation failures go to the sender alone and mutate
// nothing.
func (rt *Router) handleMove(connectionID string, env Envelope) {
	if env.GameID == "" {
		rt.sendError(connectionID, "", CodeMissingGameID)
		return
	}

	sess, err := rt.store.RecordMove(env.GameID, connectionID, env.Payload)
	if err != nil {
		rt.sendError(connectionID, env.GameID, errorCode(err))
		return
	}

	if rt.archive != nil {
		rt.archive.RecordMove(context.Background(), sess.GameID, connectionID, sess.Moves, string(env.Payload))
	}
	log.Printf("[MOVE] conn=%s game=%s ply=%d turn=%s", connectionID, sess.GameID, sess.Moves, sess.Turn)

	opponent := sess.Opponent(connectionID)
	if opponent == "" {
		return
	}
	rt.pushOrReap(opponent, Envelope{
		Kind:         KindOpponentMove,
		GameID:       sess.GameID,
		Payload:      env.Payload,
		ConnectionID: opponent,
	})
}

// handleEnd finishes an active session on a participant's request
// (checkmate, resignation — the client-side engine decides; the payload
// carries its verdict to the opponent).
func (rt *Router) handleEnd(connectionID string, env Envelope) {
	if env.GameID == "" {
		rt.sendError(connectionID, "", CodeMissingGameID)
		return
	}

	sess, err := rt.store.Get(env.GameID)
	if err != nil {
		rt.sendError(connectionID, env.GameID, errorCode(err))
		return
	}
	if sess.Status != session.StatusActive {
		rt.sendError(connectionID, env.GameID, CodeSessionNotActive)
		return
	}
	if !sess.Participant(connectionID) {
		rt.sendError(connectionID, env.GameID, CodeNotParticipant)
		return
	}

	ended, err := rt.store.EndSession(env.GameID, session.StatusFinished)
	if err != nil {
		rt.sendError(connectionID, env.GameID, errorCode(err))
		return
	}
	if !ended {
		// The session went terminal between the status check and here.
		rt.sendError(connectionID, env.GameID, CodeSessionNotActive)
		return
	}
	rt.archiveCompletion(sess.GameID, session.StatusFinished, sess.Moves)
	log.Printf("[END] conn=%s game=%s finished", connectionID, sess.GameID)

	if opponent := sess.Opponent(connectionID); opponent != "" {
		rt.pushOrReap(opponent, Envelope{
			Kind:         KindGameEnded,
			GameID:       sess.GameID,
			Payload:      env.Payload,
			ConnectionID: opponent,
		})
	}
}

// push sends a frame and reports the outcome.
func (rt *Router) push(connectionID string, env Envelope) Delivery {
	return rt.gateway.Send(connectionID, mustMarshal(env))
}

// pushOrReap sends a frame and treats a Gone result as an implicit
// disconnect of the target, triggering the same cleanup as an explicit
// disconnect event.
func (rt *Router) pushOrReap(connectionID string, env Envelope) {
	if rt.push(connectionID, env) == Gone {
		rt.HandleDisconnect(connectionID)
	}
}

// sendError delivers an error frame to the offending sender only. The
// delivery result is ignored: a sender that vanished will be reaped by
// its own disconnect path.
func (rt *Router) sendError(connectionID, gameID, code string) {
	rt.push(connectionID, Envelope{
		Kind:         KindError,
		GameID:       gameID,
		ConnectionID: connectionID,
		Error:        code,
	})
}

// archiveGame upserts the durable row for a session, resolving player
// user ids through the registry.
func (rt *Router) archiveGame(sess session.GameSession) {
	if rt.archive == nil {
		return
	}
	var p1User, p2User string
	if rec, err := rt.registry.Lookup(sess.Player1); err == nil {
		p1User = rec.UserID
	}
	if rec, err := rt.registry.Lookup(sess.Player2); err == nil {
		p2User = rec.UserID
	}
	rt.archive.RecordGame(context.Background(), sess.GameID, p1User, p2User, string(sess.Status), sess.Moves)
}

func (rt *Router) archiveCompletion(gameID string, status session.Status, moves int) {
	if rt.archive == nil {
		return
	}
	rt.archive.CompleteGame(context.Background(), gameID, string(status), moves, time.Now())
}

// errorCode maps store errors to their wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionFull):
		return CodeSessionFull
	case errors.Is(err, session.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, session.ErrSessionNotActive):
		return CodeSessionNotActive
	case errors.Is(err, session.ErrNotParticipant):
		return CodeNotParticipant
	case errors.Is(err, session.ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, session.ErrSessionNotFound):
		return CodeNotFound
	}
	return CodeInvalidState
}

func mustMarshal(env Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Envelope contains only marshalable fields.
		log.Printf("ERROR: failed to marshal frame: %v", err)
		return []byte(`{"kind":"error","error":"internal"}`)
	}
	return data
}
