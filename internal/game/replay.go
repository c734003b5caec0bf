// internal/game/replay.go
package game

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/ledger"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// ReplayState is the board and lives reconstructed from a move ledger.
type ReplayState struct {
	Board string
	Lives map[uuid.UUID]int
}

// Replay rebuilds the board and every player's lives from room's puzzle and
// its ledger, starting each roster player at maxLives. It fails on a record
// that could not have been produced by ApplyMove.
func Replay(room *models.Room, maxLives int, moves []models.Move) (*ReplayState, error) {
	if room.Game == nil {
		return nil, fmt.Errorf("room %s has no game", room.Code)
	}
	if err := ledger.Verify(moves); err != nil {
		return nil, err
	}
	g := room.Game
	st := &ReplayState{Board: g.Puzzle, Lives: make(map[uuid.UUID]int, len(room.Players))}
	for _, p := range room.Players {
		st.Lives[p.UID] = maxLives
	}

	for _, mv := range moves {
		lives, ok := st.Lives[mv.PlayerID]
		if !ok {
			return nil, fmt.Errorf("move %d: player %s not in room", mv.MoveNumber, mv.PlayerID)
		}
		if mv.Position < 0 || mv.Position >= len(st.Board) {
			return nil, fmt.Errorf("move %d: position %d out of range", mv.MoveNumber, mv.Position)
		}
		if st.Board[mv.Position] != models.Blank {
			return nil, fmt.Errorf("move %d: position %d already filled", mv.MoveNumber, mv.Position)
		}
		correct := g.Solution[mv.Position] == digit(mv.NumberPlaced)
		if correct != mv.IsValid {
			return nil, fmt.Errorf("move %d: recorded validity %t disagrees with solution", mv.MoveNumber, mv.IsValid)
		}
		if correct {
			st.Board = setCell(st.Board, mv.Position, digit(mv.NumberPlaced))
		} else if lives > 0 {
			st.Lives[mv.PlayerID] = lives - 1
		}
	}
	return st, nil
}
