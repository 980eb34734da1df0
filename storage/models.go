package storage

import "time"

// Game is the durable record of a game session.
type Game struct {
	ID          string `gorm:"primaryKey"`
	Player1User string
	Player2User string
	Status      string `gorm:"index"`
	Moves       int
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Move stores a single relayed move.
type Move struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	GameID       string `gorm:"index"`
	ConnectionID string
	Number       int
	Payload      string
	CreatedAt    time.Time
}
