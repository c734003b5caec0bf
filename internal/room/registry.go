// internal/room/registry.go
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/game"
	"github.com/jason-s-yu/sudokuduel/internal/metrics"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/puzzle"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 5
)

// Registry creates rooms, admits players and starts games.
type Registry struct {
	store   store.Store
	rules   models.Rules
	puzzles *puzzle.Source
	logger  *logrus.Logger

	// Numbers draws the first numeral of a game.
	Numbers game.NumberSource
	// Codes draws room code characters.
	Codes game.NumberSource
	Now   func() time.Time

	Publisher cache.Publisher
	Metrics   *metrics.Metrics
}

// StartOutcome is the result of a successful StartGame.
type StartOutcome struct {
	Room *models.Room
	// Degraded is set when the generator failed and the game runs on a blank
	// board.
	Degraded bool
}

// NewRegistry wires a registry over st, drawing puzzles from puzzles.
func NewRegistry(st store.Store, rules models.Rules, puzzles *puzzle.Source, logger *logrus.Logger) *Registry {
	seed := time.Now().UnixNano()
	return &Registry{
		store:   st,
		rules:   rules,
		puzzles: puzzles,
		logger:  logger,
		Numbers: game.NewNumberSource(seed),
		Codes:   game.NewNumberSource(seed ^ 0x5eed),
		Now:     time.Now,
	}
}

// CreateRoom opens a waiting room hosted by host. The host is seated with
// full lives and holds the turn marker until a game starts. A host already
// owning RoomQuota live rooms gets apperr.ErrQuotaExceeded.
func (r *Registry) CreateRoom(ctx context.Context, host models.Identity, settings models.Settings) (*models.Room, error) {
	if host.UID == uuid.Nil || strings.TrimSpace(host.Nickname) == "" {
		return nil, fmt.Errorf("%w: host identity is required", apperr.ErrInvalidArgument)
	}
	if settings.Difficulty != "" && !puzzle.ValidDifficulty(settings.Difficulty) {
		return nil, fmt.Errorf("%w: unknown difficulty %q", apperr.ErrInvalidArgument, settings.Difficulty)
	}
	if settings.TimeLimit < 0 {
		return nil, fmt.Errorf("%w: negative time limit", apperr.ErrInvalidArgument)
	}
	now := r.Now()

	// The quota is checked against a listing, not inside the insert, so two
	// simultaneous creates by one host can both pass.
	hosted, err := r.store.ListRoomsByHost(ctx, host.UID)
	if err != nil {
		return nil, game.TranslateStoreError(err, "")
	}
	live := 0
	for _, h := range hosted {
		if h.Live(now) {
			live++
		}
	}
	if live >= r.rules.RoomQuota {
		return nil, fmt.Errorf("%w: host %s owns %d live rooms", apperr.ErrQuotaExceeded, host.UID, live)
	}

	room := &models.Room{
		Host:   host,
		Status: models.StatusWaiting,
		Players: []models.PlayerState{{
			UID:             host.UID,
			Nickname:        host.Nickname,
			Lives:           r.rules.MaxLives,
			IsCurrentPlayer: true,
			JoinedAt:        now,
		}},
		Settings:  settings,
		CreatedAt: now,
		ExpireAt:  now.Add(r.rules.RoomTTL),
	}
	for attempt := 0; ; attempt++ {
		room.Code = r.newCode()
		err = r.store.InsertRoom(ctx, room)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) || attempt+1 >= codeAttempts {
			r.Metrics.IncCommitFailure("create_room", "insert")
			return nil, game.TranslateStoreError(err, room.Code)
		}
	}

	r.Metrics.IncRoomsCreated()
	r.log().WithFields(logrus.Fields{"room": room.Code, "uid": host.UID}).Info("room created")
	r.publish(ctx, room, models.EventRoomCreated, host.UID, map[string]interface{}{
		"host": host.Nickname,
	})
	return room, nil
}

// JoinRoom seats ident in a waiting room at full lives.
func (r *Registry) JoinRoom(ctx context.Context, code string, ident models.Identity) (*models.Room, error) {
	if code == "" || ident.UID == uuid.Nil || strings.TrimSpace(ident.Nickname) == "" {
		return nil, fmt.Errorf("%w: room code and identity are required", apperr.ErrInvalidArgument)
	}
	now := r.Now()
	snap, err := r.read(ctx, code, now)
	if err != nil {
		return nil, err
	}
	if snap.HasPlayer(ident.UID) {
		return nil, fmt.Errorf("%w: %s in %s", apperr.ErrAlreadyJoined, ident.UID, code)
	}
	if snap.Status != models.StatusWaiting {
		return nil, fmt.Errorf("%w: room %s is %s", apperr.ErrAlreadyStarted, code, snap.Status)
	}
	if len(snap.Players) >= r.rules.MaxPlayers {
		return nil, fmt.Errorf("%w: room %s has %d players", apperr.ErrRoomFull, code, len(snap.Players))
	}

	next := snap.Clone()
	next.Players = append(next.Players, models.PlayerState{
		UID:      ident.UID,
		Nickname: ident.Nickname,
		Lives:    r.rules.MaxLives,
		JoinedAt: now,
	})
	if err := r.commit(ctx, "join_room", snap, store.Mutation{Room: next}); err != nil {
		return nil, err
	}

	r.Metrics.IncPlayersJoined()
	r.log().WithFields(logrus.Fields{"room": code, "uid": ident.UID, "players": len(next.Players)}).Info("player joined")
	r.publish(ctx, next, models.EventPlayerJoined, ident.UID, map[string]interface{}{
		"nickname": ident.Nickname,
		"players":  len(next.Players),
	})
	return next, nil
}

// StartGame fetches a puzzle and moves a waiting room to active. An empty
// difficulty uses the room's setting, then "easy".
func (r *Registry) StartGame(ctx context.Context, code, difficulty string) (*StartOutcome, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", apperr.ErrInvalidArgument)
	}
	now := r.Now()
	snap, err := r.read(ctx, code, now)
	if err != nil {
		return nil, err
	}
	if snap.Status != models.StatusWaiting || snap.Game.HasStarted() {
		return nil, fmt.Errorf("%w: room %s", apperr.ErrAlreadyStarted, code)
	}
	if n := len(snap.Players); n < r.rules.MinPlayers {
		return nil, fmt.Errorf("%w: %d of %d", apperr.ErrTooFewPlayers, n, r.rules.MinPlayers)
	} else if n > r.rules.MaxPlayers {
		return nil, fmt.Errorf("%w: %d of %d", apperr.ErrTooManyPlayers, n, r.rules.MaxPlayers)
	}

	if difficulty == "" {
		difficulty = snap.Settings.Difficulty
	}
	if difficulty == "" {
		difficulty = puzzle.Easy
	}
	if !puzzle.ValidDifficulty(difficulty) {
		return nil, fmt.Errorf("%w: unknown difficulty %q", apperr.ErrInvalidArgument, difficulty)
	}

	pair, degraded := r.puzzles.Fetch(ctx, difficulty)
	if degraded {
		r.log().WithFields(logrus.Fields{"room": code, "difficulty": difficulty}).Warn("starting game on blank board")
	}

	next := snap.Clone()
	game.Begin(next, game.Setup{
		Difficulty: difficulty,
		Puzzle:     pair.Puzzle,
		Solution:   pair.Solution,
		Degraded:   degraded,
	}, r.rules, r.Numbers, now)
	if err := r.commit(ctx, "start_game", snap, store.Mutation{Room: next}); err != nil {
		return nil, err
	}

	r.Metrics.IncGamesStarted(difficulty, degraded)
	r.log().WithFields(logrus.Fields{
		"room":       code,
		"difficulty": difficulty,
		"players":    len(next.Players),
		"degraded":   degraded,
	}).Info("game started")
	r.publish(ctx, next, models.EventGameStarted, snap.Host.UID, map[string]interface{}{
		"difficulty":    difficulty,
		"currentNumber": next.Game.CurrentNumber,
		"degraded":      degraded,
	})
	return &StartOutcome{Room: next, Degraded: degraded}, nil
}

// Room returns the current snapshot of a live or finished, unexpired room.
func (r *Registry) Room(ctx context.Context, code string) (*models.Room, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", apperr.ErrInvalidArgument)
	}
	return r.read(ctx, code, r.Now())
}

func (r *Registry) read(ctx context.Context, code string, now time.Time) (*models.Room, error) {
	snap, err := r.store.ReadRoom(ctx, code)
	if err != nil {
		return nil, game.TranslateStoreError(err, code)
	}
	if snap.Expired(now) {
		return nil, fmt.Errorf("%w: %s expired", apperr.ErrRoomNotFound, code)
	}
	return snap, nil
}

func (r *Registry) commit(ctx context.Context, op string, snap *models.Room, m store.Mutation) error {
	start := r.Now()
	if err := r.store.CommitRoom(ctx, snap.Code, snap.Version, m); err != nil {
		err = game.TranslateStoreError(err, snap.Code)
		if apperr.Retryable(err) {
			r.Metrics.IncCommitFailure(op, "conflict")
			r.log().WithFields(logrus.Fields{"room": snap.Code, "version": snap.Version, "op": op}).Warn("commit lost a concurrent update")
		} else {
			r.Metrics.IncCommitFailure(op, "storage")
		}
		return err
	}
	r.Metrics.ObserveCommit(start)
	return nil
}

func (r *Registry) newCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[r.Codes.Intn(len(codeAlphabet))])
	}
	return b.String()
}

func (r *Registry) publish(ctx context.Context, room *models.Room, typ models.RoomEventType, actor uuid.UUID, payload map[string]interface{}) {
	cache.PublishBestEffort(ctx, r.Publisher, r.logger, models.RoomEvent{
		RoomCode:  room.Code,
		Type:      typ,
		ActorID:   actor,
		Version:   room.Version,
		Payload:   payload,
		Timestamp: r.Now().UnixMilli(),
	})
}

func (r *Registry) log() *logrus.Logger {
	if r.logger == nil {
		return logrus.StandardLogger()
	}
	return r.logger
}
