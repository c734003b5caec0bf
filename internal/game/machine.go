// internal/game/machine.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/ledger"
	"github.com/jason-s-yu/sudokuduel/internal/metrics"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/stats"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/sirupsen/logrus"
)

// NumberSource draws the next numeral. *rand.Rand satisfies it.
type NumberSource interface {
	Intn(n int) int
}

// lockedSource makes a *rand.Rand safe to share between callers.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// NewNumberSource returns a goroutine-safe source seeded with seed.
func NewNumberSource(seed int64) NumberSource {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

// MoveRequest is one placement attempt of the room's current numeral.
type MoveRequest struct {
	RoomCode string
	PlayerID uuid.UUID
	Position int

	// ExpectedMoveNumber, when non-zero, must equal the number this move
	// would receive; resubmissions of an applied move fail with ErrStaleRequest.
	ExpectedMoveNumber int
}

// MoveResult reports the committed outcome of a move.
type MoveResult struct {
	IsCorrect bool
	Move      models.Move
	Finished  bool
	Winner    uuid.UUID
	Room      *models.Room
}

// Machine applies moves to rooms. It holds no room state of its own: every
// call reads a snapshot, computes the next state and commits it against the
// snapshot's version.
type Machine struct {
	store  store.Store
	rules  models.Rules
	logger *logrus.Logger

	// Numbers draws the next numeral; defaults to a time-seeded source.
	Numbers NumberSource
	// Now is the clock used for timestamps and expiry.
	Now func() time.Time
	// Publisher, if set, receives move and finish events after commit.
	Publisher cache.Publisher
	// Metrics, if set, counts moves, finishes and commit failures.
	Metrics *metrics.Metrics
}

// NewMachine wires a state machine over st.
func NewMachine(st store.Store, rules models.Rules, logger *logrus.Logger) *Machine {
	return &Machine{
		store:   st,
		rules:   rules,
		logger:  logger,
		Numbers: NewNumberSource(time.Now().UnixNano()),
		Now:     time.Now,
	}
}

// ApplyMove validates and applies a move as one atomic unit: the board or
// lives change, the turn rotates, a new numeral is drawn, the move is
// appended to the ledger and, if the game ends, stats are credited. A lost
// race returns apperr.ErrConflict and nothing is applied.
func (m *Machine) ApplyMove(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	if req.RoomCode == "" || req.PlayerID == uuid.Nil {
		return nil, fmt.Errorf("%w: room code and player id are required", apperr.ErrInvalidArgument)
	}
	start := m.Now()

	snap, err := m.store.ReadRoom(ctx, req.RoomCode)
	if err != nil {
		return nil, TranslateStoreError(err, req.RoomCode)
	}
	if snap.Expired(start) {
		return nil, fmt.Errorf("%w: %s expired", apperr.ErrRoomNotFound, req.RoomCode)
	}

	mut, res, err := m.transition(snap, req, start)
	if err != nil {
		return nil, err
	}

	if err := m.store.CommitRoom(ctx, req.RoomCode, snap.Version, *mut); err != nil {
		err = TranslateStoreError(err, req.RoomCode)
		if apperr.Retryable(err) {
			m.Metrics.IncCommitFailure("apply_move", "conflict")
			m.log().WithFields(logrus.Fields{
				"room":    req.RoomCode,
				"uid":     req.PlayerID,
				"version": snap.Version,
			}).Warn("move lost a concurrent commit")
		}
		return nil, err
	}
	m.Metrics.ObserveCommit(start)
	m.Metrics.IncMoves(res.IsCorrect)
	res.Room = mut.Room

	m.log().WithFields(logrus.Fields{
		"room":     req.RoomCode,
		"uid":      req.PlayerID,
		"position": req.Position,
		"move":     res.Move.MoveNumber,
		"valid":    res.IsCorrect,
	}).Debug("move applied")

	m.publish(ctx, mut.Room, models.EventMoveApplied, req.PlayerID, map[string]interface{}{
		"moveNumber":    res.Move.MoveNumber,
		"position":      res.Move.Position,
		"numberPlaced":  res.Move.NumberPlaced,
		"isValid":       res.Move.IsValid,
		"currentNumber": mut.Room.Game.CurrentNumber,
	})
	if res.Finished {
		m.Metrics.IncGamesFinished()
		m.log().WithFields(logrus.Fields{
			"room":   req.RoomCode,
			"winner": res.Winner,
			"moves":  res.Move.MoveNumber,
		}).Info("game finished")
		m.publish(ctx, mut.Room, models.EventGameFinished, req.PlayerID, map[string]interface{}{
			"winner":         res.Winner.String(),
			"winnerNickname": mut.Room.Game.WinnerNickname,
		})
	}
	return res, nil
}

// transition computes the mutation for req against snap without side effects.
func (m *Machine) transition(snap *models.Room, req MoveRequest, now time.Time) (*store.Mutation, *MoveResult, error) {
	if req.Position < 0 || req.Position >= models.BoardSize {
		return nil, nil, fmt.Errorf("%w: %d", apperr.ErrInvalidPosition, req.Position)
	}
	g := snap.Game
	if snap.Status == models.StatusFinished {
		return nil, nil, fmt.Errorf("%w: room %s", apperr.ErrGameFinished, snap.Code)
	}
	if g == nil || !g.Started || snap.Status != models.StatusActive {
		return nil, nil, fmt.Errorf("%w: room %s", apperr.ErrGameNotStarted, snap.Code)
	}
	if req.ExpectedMoveNumber != 0 && req.ExpectedMoveNumber != g.MoveCount+1 {
		return nil, nil, fmt.Errorf("%w: expected move %d, next is %d", apperr.ErrStaleRequest, req.ExpectedMoveNumber, g.MoveCount+1)
	}
	idx := snap.Player(req.PlayerID)
	if idx < 0 || !snap.Players[idx].IsCurrentPlayer {
		return nil, nil, fmt.Errorf("%w: room %s", apperr.ErrNotYourTurn, snap.Code)
	}
	if g.Board[req.Position] != models.Blank {
		return nil, nil, fmt.Errorf("%w: position %d holds %c", apperr.ErrCellAlreadyFilled, req.Position, g.Board[req.Position])
	}

	next := snap.Clone()
	ng := next.Game
	number := ng.CurrentNumber
	isCorrect := ng.Solution[req.Position] == digit(number)

	// Incorrect guesses cost a life and leave the cell blank for a retry.
	if isCorrect {
		ng.Board = setCell(ng.Board, req.Position, digit(number))
	} else if next.Players[idx].Lives > 0 {
		next.Players[idx].Lives--
	}

	nextIdx := NextPlayer(next.Players, req.PlayerID)
	for i := range next.Players {
		next.Players[i].IsCurrentPlayer = i == nextIdx
	}

	ng.CurrentNumber = DrawNumber(m.rules, m.Numbers, ng)
	ng.LastMoveBy = req.PlayerID

	res := &MoveResult{IsCorrect: isCorrect}
	switch {
	case next.Players[idx].Lives == 0:
		m.finish(next, nextIdx, now)
	case isCorrect && boardComplete(ng.Board):
		m.finish(next, leader(next.Players), now)
	}

	mut := &store.Mutation{Room: next}
	res.Move = ledger.Append(mut, ng, models.Move{
		RoomCode:         next.Code,
		PlayerID:         req.PlayerID,
		Player:           next.Players[idx].Nickname,
		Position:         req.Position,
		NumberPlaced:     number,
		IsValid:          isCorrect,
		ChosenNextNumber: ng.CurrentNumber,
		Timestamp:        now,
	})
	if next.Status == models.StatusFinished {
		stats.Fold(mut, next)
		res.Finished = true
		res.Winner = ng.Winner
	}
	return mut, res, nil
}

// finish declares players[winnerIdx] the winner and extends the room's expiry
// for post-game review. No player holds the turn afterwards.
func (m *Machine) finish(room *models.Room, winnerIdx int, now time.Time) {
	w := room.Players[winnerIdx]
	room.Status = models.StatusFinished
	room.Game.Winner = w.UID
	room.Game.WinnerNickname = w.Nickname
	room.Game.FinishedAt = &now
	room.ExpireAt = now.Add(m.rules.FinishedRetention)
	for i := range room.Players {
		room.Players[i].IsCurrentPlayer = false
	}
}

func (m *Machine) publish(ctx context.Context, room *models.Room, typ models.RoomEventType, actor uuid.UUID, payload map[string]interface{}) {
	cache.PublishBestEffort(ctx, m.Publisher, m.logger, models.RoomEvent{
		RoomCode:  room.Code,
		Type:      typ,
		ActorID:   actor,
		Version:   room.Version,
		Payload:   payload,
		Timestamp: m.Now().UnixMilli(),
	})
}

func (m *Machine) log() *logrus.Logger {
	if m.logger == nil {
		return logrus.StandardLogger()
	}
	return m.logger
}

// TranslateStoreError maps storage errors onto the service taxonomy.
func TranslateStoreError(err error, code string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", apperr.ErrRoomNotFound, code)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: room %s", apperr.ErrConflict, code)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: room %s: %v", apperr.ErrStorageUnavailable, code, err)
	}
}
