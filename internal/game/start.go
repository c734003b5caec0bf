// internal/game/start.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// Setup is the input for attaching a game to a room.
type Setup struct {
	Difficulty string
	Puzzle     string
	Solution   string
	Degraded   bool
}

// Begin attaches a new game to room and makes it active: every player is
// reset to full lives, the host holds the first turn and the first numeral is
// drawn. The board starts as a copy of the puzzle.
func Begin(room *models.Room, s Setup, rules models.Rules, src NumberSource, now time.Time) {
	g := &models.GameState{
		Started:    true,
		Difficulty: s.Difficulty,
		Puzzle:     s.Puzzle,
		Solution:   s.Solution,
		Board:      s.Puzzle,
		LastMoveBy: uuid.Nil,
		Winner:     uuid.Nil,
		Degraded:   s.Degraded,
		StartedAt:  now,
	}
	g.CurrentNumber = DrawNumber(rules, src, g)

	for i := range room.Players {
		room.Players[i].Lives = rules.MaxLives
		room.Players[i].IsCurrentPlayer = room.Players[i].UID == room.Host.UID
	}
	room.Status = models.StatusActive
	room.Game = g
}
