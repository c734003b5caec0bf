// Package ledger is the append-only per-room move history.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
)

// Append numbers mv as the next move of g and adds it to the mutation. It must
// run on the snapshot being committed: the store rejects the whole mutation if
// another move was committed in between.
func Append(m *store.Mutation, g *models.GameState, mv models.Move) models.Move {
	mv.MoveNumber = g.MoveCount + 1
	g.MoveCount = mv.MoveNumber
	m.Moves = append(m.Moves, mv)
	return mv
}

// Verify checks that moves are numbered 1..n without gaps.
func Verify(moves []models.Move) error {
	for i, mv := range moves {
		if mv.MoveNumber != i+1 {
			return fmt.Errorf("move %d has number %d", i+1, mv.MoveNumber)
		}
	}
	return nil
}

// Ledger is the read side of the move history.
type Ledger struct {
	store store.Store
}

// New returns a Ledger reading from st.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// CountMoves is for display only; sequence numbers come from Append.
func (l *Ledger) CountMoves(ctx context.Context, code string) (int, error) {
	n, err := l.store.CountMoves(ctx, code)
	if err != nil {
		return 0, storageError(err, "count moves for room "+code)
	}
	return n, nil
}

// Moves returns the full history in order.
func (l *Ledger) Moves(ctx context.Context, code string) ([]models.Move, error) {
	moves, err := l.store.ListMoves(ctx, code)
	if err != nil {
		return nil, storageError(err, "list moves for room "+code)
	}
	if err := Verify(moves); err != nil {
		return nil, fmt.Errorf("room %s ledger: %w", code, err)
	}
	return moves, nil
}

// storageError classifies a store failure as unavailable storage. Cancelled
// and timed-out reads pass through unchanged.
func storageError(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrStorageUnavailable, op, err)
}
