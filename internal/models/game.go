// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// BoardSize is the number of cells in a puzzle grid.
	BoardSize = 81
	// Blank marks an unfilled cell.
	Blank = '.'
)

// GameState is attached to a room once, at start, and mutated in place.
// Solution is never sent to clients.
type GameState struct {
	Started        bool       `json:"started"`
	Difficulty     string     `json:"difficulty"`
	Puzzle         string     `json:"puzzle"`
	Solution       string     `json:"solution"`
	Board          string     `json:"board"`
	CurrentNumber  int        `json:"currentNumber"`
	LastMoveBy     uuid.UUID  `json:"lastMoveBy"`
	Winner         uuid.UUID  `json:"winner"`
	WinnerNickname string     `json:"winnerNickname,omitempty"`
	MoveCount      int        `json:"moveCount"`
	Degraded       bool       `json:"degraded,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// HasStarted is nil-safe.
func (g *GameState) HasStarted() bool {
	return g != nil && g.Started
}

// HasWinner reports whether the game has been decided.
func (g *GameState) HasWinner() bool {
	return g != nil && g.Winner != uuid.Nil
}

// Move is an immutable ledger record. MoveNumber is 1-based and gapless per room.
type Move struct {
	RoomCode         string    `json:"roomCode"`
	MoveNumber       int       `json:"moveNumber"`
	PlayerID         uuid.UUID `json:"playerId"`
	Player           string    `json:"player"`
	Position         int       `json:"position"`
	NumberPlaced     int       `json:"numberPlaced"`
	IsValid          bool      `json:"isValid"`
	ChosenNextNumber int       `json:"chosenNextNumber"`
	Timestamp        time.Time `json:"timestamp"`
}
