package storage

import (
	"context"
	"log"
	"time"

	"github.com/jpillora/backoff"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = gorm.ErrRecordNotFound

// writeAttempts bounds the retry loop on a failing archive write.
const writeAttempts = 3

// Archive persists game and move history. It is an observer of the live
// state, never an authority: every method is nil-safe so the server runs
// memory-only when no database is configured, and a failed write aborts
// nothing on the hot path.
type Archive struct {
	db *gorm.DB
}

// NewArchive creates an archive helper from a gorm DB. A nil DB yields a
// nil archive, on which every method is a no-op.
func NewArchive(db *gorm.DB) *Archive {
	if db == nil {
		return nil
	}
	return &Archive{db: db}
}

// withRetry runs an archive write, retrying transient failures with
// jittered exponential backoff before giving up.
func (a *Archive) withRetry(op string, fn func() error) {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	var err error
	for i := 0; i < writeAttempts; i++ {
		if err = fn(); err == nil {
			return
		}
		time.Sleep(b.Duration())
	}
	log.Printf("archive: %s failed after %d attempts: %v", op, writeAttempts, err)
}

// RecordGame upserts the durable row for a session, tracking its players
// and current status.
func (a *Archive) RecordGame(ctx context.Context, gameID, player1User, player2User, status string, moves int) {
	if a == nil {
		return
	}
	a.withRetry("record game", func() error {
		game := Game{
			ID:          gameID,
			Player1User: player1User,
			Player2User: player2User,
			Status:      status,
			Moves:       moves,
		}
		return a.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"player1_user", "player2_user", "status", "moves",
			}),
		}).Create(&game).Error
	})
}

// RecordMove inserts a move row for the given game.
func (a *Archive) RecordMove(ctx context.Context, gameID, connectionID string, number int, payload string) {
	if a == nil {
		return
	}
	a.withRetry("record move", func() error {
		move := Move{
			GameID:       gameID,
			ConnectionID: connectionID,
			Number:       number,
			Payload:      payload,
		}
		return a.db.WithContext(ctx).Create(&move).Error
	})
}

// CompleteGame marks a game's terminal status and completion time.
func (a *Archive) CompleteGame(ctx context.Context, gameID, status string, moves int, completedAt time.Time) {
	if a == nil {
		return
	}
	a.withRetry("complete game", func() error {
		return a.db.WithContext(ctx).Model(&Game{}).
			Where("id = ?", gameID).
			Updates(map[string]any{
				"status":       status,
				"moves":        moves,
				"completed_at": completedAt,
			}).Error
	})
}

// Stats represents aggregate counts over archived games.
type Stats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Abandoned int64 `json:"abandoned"`
}

// FetchStats aggregates counts for the stats endpoint.
func (a *Archive) FetchStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if a == nil {
		return stats, nil
	}
	if err := a.db.WithContext(ctx).Model(&Game{}).Count(&stats.Started).Error; err != nil {
		return stats, err
	}
	if err := a.db.WithContext(ctx).Model(&Game{}).Where("status = ?", "finished").Count(&stats.Completed).Error; err != nil {
		return stats, err
	}
	if err := a.db.WithContext(ctx).Model(&Game{}).Where("status = ?", "abandoned").Count(&stats.Abandoned).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
