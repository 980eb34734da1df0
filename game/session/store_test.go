package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStore_CreateOrJoin(t *testing.T) {
	st := NewStore(30 * time.Minute)

	t.Run("first join creates waiting session", func(t *testing.T) {
		sess, err := st.CreateOrJoin("game-1", "conn-a")
		if err != nil {
			t.Fatalf("CreateOrJoin failed: %v", err)
		}
		if sess.Status != StatusWaiting {
			t.Errorf("Expected status waiting, got %s", sess.Status)
		}
		if sess.Player1 != "conn-a" {
			t.Errorf("Expected player1 'conn-a', got '%s'", sess.Player1)
		}
		if sess.Turn != TurnPlayer1 {
			t.Errorf("Expected player1 to move first, got %s", sess.Turn)
		}
	})

	t.Run("second join activates session", func(t *testing.T) {
		sess, err := st.CreateOrJoin("game-1", "conn-b")
		if err != nil {
			t.Fatalf("CreateOrJoin failed: %v", err)
		}
		if sess.Status != StatusActive {
			t.Errorf("Expected status active, got %s", sess.Status)
		}
		if sess.Player2 != "conn-b" {
			t.Errorf("Expected player2 'conn-b', got '%s'", sess.Player2)
		}
		if sess.Turn != TurnPlayer1 {
			t.Errorf("Turn must not change on join, got %s", sess.Turn)
		}
	})

	t.Run("third join is rejected", func(t *testing.T) {
		_, err := st.CreateOrJoin("game-1", "conn-c")
		if !errors.Is(err, ErrSessionFull) {
			t.Errorf("Expected ErrSessionFull, got %v", err)
		}
	})

	t.Run("participant re-join is a no-op", func(t *testing.T) {
		sess, err := st.CreateOrJoin("game-1", "conn-a")
		if err != nil {
			t.Fatalf("Re-join failed: %v", err)
		}
		if sess.Player1 != "conn-a" || sess.Player2 != "conn-b" {
			t.Error("Re-join must not change membership")
		}
	})

	t.Run("joining a terminal session", func(t *testing.T) {
		st.EndSession("game-1", StatusAbandoned)
		_, err := st.CreateOrJoin("game-1", "conn-d")
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})
}

func TestStore_CreateOrJoin_AtomicPairing(t *testing.T) {
	st := NewStore(30 * time.Minute)
	st.CreateOrJoin("game-1", "conn-owner")

	// Many connections race for the single player2 slot; exactly one
	// may win.
	const contenders = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := st.CreateOrJoin("game-1", string(rune('a'+n))+"-conn")
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrSessionFull) {
				t.Errorf("Unexpected join error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 successful player2 join, got %d", winners)
	}

	sess, _ := st.Get("game-1")
	if sess.Status != StatusActive {
		t.Errorf("Expected session active, got %s", sess.Status)
	}
}

func activeSession(t *testing.T, st *Store) GameSession {
	t.Helper()
	if _, err := st.CreateOrJoin("game-1", "conn-a"); err != nil {
		t.Fatalf("setup join failed: %v", err)
	}
	sess, err := st.CreateOrJoin("game-1", "conn-b")
	if err != nil {
		t.Fatalf("setup join failed: %v", err)
	}
	return sess
}

func TestStore_RecordMove(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)
	payload := json.RawMessage(`{"from":"e2","to":"e4"}`)

	t.Run("turn holder moves", func(t *testing.T) {
		sess, err := st.RecordMove("game-1", "conn-a", payload)
		if err != nil {
			t.Fatalf("RecordMove failed: %v", err)
		}
		if sess.Turn != TurnPlayer2 {
			t.Errorf("Expected turn to flip to player2, got %s", sess.Turn)
		}
		if sess.Moves != 1 {
			t.Errorf("Expected 1 move recorded, got %d", sess.Moves)
		}
		if string(sess.LastMove) != string(payload) {
			t.Errorf("Expected last move to hold the payload, got %s", sess.LastMove)
		}
	})

	t.Run("stale move rejected", func(t *testing.T) {
		_, err := st.RecordMove("game-1", "conn-a", payload)
		if !errors.Is(err, ErrNotYourTurn) {
			t.Errorf("Expected ErrNotYourTurn, got %v", err)
		}

		// Rejection must not mutate the session.
		sess, _ := st.Get("game-1")
		if sess.Turn != TurnPlayer2 || sess.Moves != 1 {
			t.Error("Rejected move mutated the session")
		}
	})

	t.Run("non-participant rejected", func(t *testing.T) {
		_, err := st.RecordMove("game-1", "conn-intruder", payload)
		if !errors.Is(err, ErrNotParticipant) {
			t.Errorf("Expected ErrNotParticipant, got %v", err)
		}
	})

	t.Run("turn alternates", func(t *testing.T) {
		sess, err := st.RecordMove("game-1", "conn-b", payload)
		if err != nil {
			t.Fatalf("RecordMove failed: %v", err)
		}
		if sess.Turn != TurnPlayer1 {
			t.Errorf("Expected turn back to player1, got %s", sess.Turn)
		}
	})

	t.Run("unknown game", func(t *testing.T) {
		_, err := st.RecordMove("no-such-game", "conn-a", payload)
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestStore_RecordMove_WaitingSession(t *testing.T) {
	st := NewStore(30 * time.Minute)
	st.CreateOrJoin("game-1", "conn-a")

	_, err := st.RecordMove("game-1", "conn-a", nil)
	if !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Expected ErrSessionNotActive on waiting session, got %v", err)
	}
}

func TestStore_RecordMove_TurnExclusivity(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)

	// Both players hammer the store concurrently. Whatever the
	// interleaving, each accepted move flips the turn exactly once, so
	// accepted moves must equal the final move count and the turn must
	// match its parity.
	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for _, conn := range []string{"conn-a", "conn-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < attempts; i++ {
				if _, err := st.RecordMove("game-1", id, nil); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}(conn)
	}
	wg.Wait()

	sess, _ := st.Get("game-1")
	if sess.Moves != accepted {
		t.Errorf("Accepted %d moves but store recorded %d", accepted, sess.Moves)
	}

	expectedTurn := TurnPlayer1
	if accepted%2 == 1 {
		expectedTurn = TurnPlayer2
	}
	if sess.Turn != expectedTurn {
		t.Errorf("After %d moves expected turn %s, got %s", accepted, expectedTurn, sess.Turn)
	}
}

func TestStore_EndSession(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)

	t.Run("finish active session", func(t *testing.T) {
		ended, err := st.EndSession("game-1", StatusFinished)
		if err != nil {
			t.Fatalf("EndSession failed: %v", err)
		}
		if !ended {
			t.Error("Expected the call to report the transition")
		}
		sess, _ := st.Get("game-1")
		if sess.Status != StatusFinished {
			t.Errorf("Expected status finished, got %s", sess.Status)
		}
	})

	t.Run("ending a terminal session is a no-op", func(t *testing.T) {
		ended, err := st.EndSession("game-1", StatusAbandoned)
		if err != nil {
			t.Errorf("Expected no-op, got %v", err)
		}
		if ended {
			t.Error("A no-op must not report a transition")
		}
		sess, _ := st.Get("game-1")
		if sess.Status != StatusFinished {
			t.Errorf("Terminal status was overwritten: %s", sess.Status)
		}
	})

	t.Run("non-terminal target status", func(t *testing.T) {
		if _, err := st.EndSession("game-1", StatusActive); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("unknown game", func(t *testing.T) {
		if _, err := st.EndSession("no-such-game", StatusFinished); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("moves after the end are rejected", func(t *testing.T) {
		_, err := st.RecordMove("game-1", "conn-a", nil)
		if !errors.Is(err, ErrSessionNotActive) {
			t.Errorf("Expected ErrSessionNotActive, got %v", err)
		}
	})
}

func TestStore_EndSession_SingleTransition(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)

	// The disconnect path and the sweeper can both try to abandon the
	// same session; exactly one caller may observe the transition, so
	// exactly one peer notification gets sent.
	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ended, err := st.EndSession("game-1", StatusAbandoned)
			if err != nil {
				t.Errorf("EndSession failed: %v", err)
				return
			}
			if ended {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if transitions != 1 {
		t.Errorf("Expected exactly 1 observed transition, got %d", transitions)
	}
}

func TestStore_FindByConnection(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)

	for _, conn := range []string{"conn-a", "conn-b"} {
		sess, err := st.FindByConnection(conn)
		if err != nil {
			t.Fatalf("FindByConnection(%s) failed: %v", conn, err)
		}
		if sess.GameID != "game-1" {
			t.Errorf("Expected game-1, got %s", sess.GameID)
		}
	}

	if _, err := st.FindByConnection("conn-stranger"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)

	if err := st.Delete("game-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if st.Count() != 0 {
		t.Errorf("Expected empty store, got %d sessions", st.Count())
	}
	if _, err := st.FindByConnection("conn-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("Expected connection index to be cleared on delete")
	}
	if err := st.Delete("game-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on double delete, got %v", err)
	}
}

func TestStore_Delete_PreservesNewerIndex(t *testing.T) {
	st := NewStore(30 * time.Minute)
	activeSession(t, st)
	st.EndSession("game-1", StatusAbandoned)

	// conn-a moves on to a new game before the old row is swept.
	if _, err := st.CreateOrJoin("game-2", "conn-a"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if err := st.Delete("game-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	sess, err := st.FindByConnection("conn-a")
	if err != nil {
		t.Fatalf("Deleting the old game lost conn-a's index entry: %v", err)
	}
	if sess.GameID != "game-2" {
		t.Errorf("Expected conn-a to resolve to game-2, got %s", sess.GameID)
	}

	// conn-b had no newer game; its entry goes with the delete.
	if _, err := st.FindByConnection("conn-b"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for conn-b, got %v", err)
	}
}

func TestStore_ExpiredBefore(t *testing.T) {
	st := NewStore(time.Minute)
	st.CreateOrJoin("game-1", "conn-a")
	st.CreateOrJoin("game-2", "conn-b")

	if got := st.ExpiredBefore(time.Now()); len(got) != 0 {
		t.Errorf("Expected nothing expired, got %d", len(got))
	}
	if got := st.ExpiredBefore(time.Now().Add(2 * time.Minute)); len(got) != 2 {
		t.Errorf("Expected 2 expired sessions, got %d", len(got))
	}
}

func TestGameSession_Helpers(t *testing.T) {
	sess := GameSession{Player1: "a", Player2: "b"}

	if sess.Opponent("a") != "b" || sess.Opponent("b") != "a" {
		t.Error("Opponent lookup wrong")
	}
	if sess.Opponent("c") != "" {
		t.Error("Opponent of a stranger must be empty")
	}
	if !sess.Participant("a") || !sess.Participant("b") || sess.Participant("c") {
		t.Error("Participant check wrong")
	}
	if sess.Participant("") {
		t.Error("Empty connection id must never be a participant")
	}
	if sess.Role("a") != TurnPlayer1 || sess.Role("b") != TurnPlayer2 {
		t.Error("Role mapping wrong")
	}
}
