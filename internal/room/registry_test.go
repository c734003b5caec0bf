package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/puzzle"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	solved    = "534678912672195348198342567859761423426853791713924856961537284287419635345286179"
	puzzleStr = "53..7....6..195....98....6.8...6...34..8.3..17...2...6.6....28....419..5....8..79"
)

type stubGenerator struct {
	pair puzzle.Pair
	err  error
}

func (s stubGenerator) Generate(context.Context, string) (puzzle.Pair, error) { return s.pair, s.err }

type fixture struct {
	ctx   context.Context
	store *store.MemoryStore
	reg   *Registry
	now   time.Time
}

func newFixture(t *testing.T, gen puzzle.Generator) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		ctx:   context.Background(),
		store: store.NewMemoryStore(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if gen == nil {
		gen = stubGenerator{pair: puzzle.Pair{Puzzle: puzzleStr, Solution: solved}}
	}
	f.reg = NewRegistry(f.store, models.DefaultRules(), puzzle.NewSource(gen, logger), logger)
	f.reg.Now = func() time.Time { return f.now }
	return f
}

func ident(name string) models.Identity {
	return models.Identity{UID: uuid.New(), Nickname: name}
}

func TestCreateRoomSeatsHost(t *testing.T) {
	f := newFixture(t, nil)
	host := ident("alpha")

	r, err := f.reg.CreateRoom(f.ctx, host, models.Settings{Difficulty: "hard"})
	require.NoError(t, err)
	assert.Len(t, r.Code, codeLength)
	assert.Equal(t, models.StatusWaiting, r.Status)
	assert.Equal(t, f.now.Add(2*time.Hour), r.ExpireAt)
	require.Len(t, r.Players, 1)
	assert.Equal(t, host.UID, r.Players[0].UID)
	assert.Equal(t, 5, r.Players[0].Lives)
	assert.True(t, r.Players[0].IsCurrentPlayer)
	assert.Nil(t, r.Game)

	got, err := f.reg.Room(f.ctx, r.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestCreateRoomValidates(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateRoom(f.ctx, models.Identity{}, models.Settings{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{Difficulty: "insane"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestCreateRoomQuota(t *testing.T) {
	f := newFixture(t, nil)
	host := ident("alpha")
	for i := 0; i < 5; i++ {
		_, err := f.reg.CreateRoom(f.ctx, host, models.Settings{})
		require.NoError(t, err)
	}

	_, err := f.reg.CreateRoom(f.ctx, host, models.Settings{})
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	// another host is unaffected
	_, err = f.reg.CreateRoom(f.ctx, ident("bravo"), models.Settings{})
	assert.NoError(t, err)

	// expired rooms stop counting
	f.now = f.now.Add(3 * time.Hour)
	_, err = f.reg.CreateRoom(f.ctx, host, models.Settings{})
	assert.NoError(t, err)
}

func TestCreateRoomRetriesCodeCollision(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.Codes = &cycleSource{vals: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}}

	a, err := f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", a.Code)

	b, err := f.reg.CreateRoom(f.ctx, ident("bravo"), models.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", b.Code)
}

type cycleSource struct {
	mu   sync.Mutex
	vals []int
	i    int
}

func (c *cycleSource) Intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.vals[c.i%len(c.vals)]
	c.i++
	return v % n
}

func TestJoinRoom(t *testing.T) {
	f := newFixture(t, nil)
	r, err := f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{})
	require.NoError(t, err)

	bravo := ident("bravo")
	f.now = f.now.Add(time.Minute)
	joined, err := f.reg.JoinRoom(f.ctx, r.Code, bravo)
	require.NoError(t, err)
	require.Len(t, joined.Players, 2)
	assert.Equal(t, bravo.UID, joined.Players[1].UID)
	assert.False(t, joined.Players[1].IsCurrentPlayer)
	assert.Equal(t, 5, joined.Players[1].Lives)
	assert.Equal(t, f.now, joined.Players[1].JoinedAt)

	_, err = f.reg.JoinRoom(f.ctx, r.Code, bravo)
	assert.ErrorIs(t, err, apperr.ErrAlreadyJoined)
	got, _ := f.reg.Room(f.ctx, r.Code)
	assert.Len(t, got.Players, 2, "roster unchanged")

	_, err = f.reg.JoinRoom(f.ctx, r.Code, ident("charlie"))
	require.NoError(t, err)
	_, err = f.reg.JoinRoom(f.ctx, r.Code, ident("delta"))
	assert.ErrorIs(t, err, apperr.ErrRoomFull)

	_, err = f.reg.JoinRoom(f.ctx, "MISSING", ident("echo"))
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
}

func TestJoinStartedOrExpiredRoom(t *testing.T) {
	f := newFixture(t, nil)
	r, _ := f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{})
	_, err := f.reg.JoinRoom(f.ctx, r.Code, ident("bravo"))
	require.NoError(t, err)
	_, err = f.reg.StartGame(f.ctx, r.Code, "")
	require.NoError(t, err)

	_, err = f.reg.JoinRoom(f.ctx, r.Code, ident("charlie"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyStarted)

	other, _ := f.reg.CreateRoom(f.ctx, ident("delta"), models.Settings{})
	f.now = f.now.Add(2*time.Hour + time.Second)
	_, err = f.reg.JoinRoom(f.ctx, other.Code, ident("echo"))
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
}

// gatedStore holds the first n ReadRoom callers until all n have read.
type gatedStore struct {
	*store.MemoryStore
	n       int32
	readers int32
	release chan struct{}
}

func (g *gatedStore) ReadRoom(ctx context.Context, code string) (*models.Room, error) {
	r, err := g.MemoryStore.ReadRoom(ctx, code)
	if c := atomic.AddInt32(&g.readers, 1); c <= g.n {
		if c == g.n {
			close(g.release)
		}
		<-g.release
	}
	return r, err
}

func TestConcurrentJoinsRetryAfterConflict(t *testing.T) {
	f := newFixture(t, nil)
	r, err := f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{})
	require.NoError(t, err)
	f.reg.store = &gatedStore{MemoryStore: f.store, n: 2, release: make(chan struct{})}

	joiners := []models.Identity{ident("bravo"), ident("charlie")}
	errs := make([]error, len(joiners))
	var wg sync.WaitGroup
	for i := range joiners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reg.JoinRoom(f.ctx, r.Code, joiners[i])
		}(i)
	}
	wg.Wait()

	loser := -1
	for i, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, apperr.ErrConflict)
			loser = i
		}
	}
	require.NotEqual(t, -1, loser, "one join must lose the race")

	_, err = f.reg.JoinRoom(f.ctx, r.Code, joiners[loser])
	require.NoError(t, err)
	got, _ := f.reg.Room(f.ctx, r.Code)
	assert.Len(t, got.Players, 3)
}

func TestStartGame(t *testing.T) {
	f := newFixture(t, nil)
	host := ident("alpha")
	r, _ := f.reg.CreateRoom(f.ctx, host, models.Settings{Difficulty: "medium"})

	_, err := f.reg.StartGame(f.ctx, r.Code, "")
	assert.ErrorIs(t, err, apperr.ErrTooFewPlayers)

	_, err = f.reg.JoinRoom(f.ctx, r.Code, ident("bravo"))
	require.NoError(t, err)

	_, err = f.reg.StartGame(f.ctx, r.Code, "impossible")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	out, err := f.reg.StartGame(f.ctx, r.Code, "")
	require.NoError(t, err)
	assert.False(t, out.Degraded)

	g := out.Room.Game
	require.NotNil(t, g)
	assert.Equal(t, models.StatusActive, out.Room.Status)
	assert.Equal(t, "medium", g.Difficulty)
	assert.Equal(t, puzzleStr, g.Board)
	assert.Equal(t, solved, g.Solution)
	assert.True(t, g.CurrentNumber >= 1 && g.CurrentNumber <= 9)
	assert.Equal(t, uuid.Nil, g.Winner)
	assert.True(t, out.Room.Players[0].IsCurrentPlayer)
	assert.False(t, out.Room.Players[1].IsCurrentPlayer)

	_, err = f.reg.StartGame(f.ctx, r.Code, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyStarted)
}

func TestStartGameTooManyPlayers(t *testing.T) {
	f := newFixture(t, nil)
	host := ident("alpha")
	r, _ := f.reg.CreateRoom(f.ctx, host, models.Settings{})
	_, _ = f.reg.JoinRoom(f.ctx, r.Code, ident("bravo"))

	// a tighter roster limit applied after players already joined
	rules := models.DefaultRules()
	rules.MaxPlayers = 1
	f.reg.rules = rules
	_, err := f.reg.StartGame(f.ctx, r.Code, "")
	assert.ErrorIs(t, err, apperr.ErrTooManyPlayers)
}

func TestStartGameDegradesOnGeneratorFailure(t *testing.T) {
	f := newFixture(t, stubGenerator{err: errors.New("generator offline")})
	r, _ := f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{})
	_, _ = f.reg.JoinRoom(f.ctx, r.Code, ident("bravo"))

	out, err := f.reg.StartGame(f.ctx, r.Code, "easy")
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.True(t, out.Room.Game.Degraded)
	assert.Equal(t, strings.Repeat(".", 81), out.Room.Game.Board)
}

func TestRegistryPublishesEvents(t *testing.T) {
	f := newFixture(t, nil)
	bus := cache.NewLocalBus()
	f.reg.Publisher = bus

	r, err := f.reg.CreateRoom(f.ctx, ident("alpha"), models.Settings{})
	require.NoError(t, err)
	events, stop, err := bus.Subscribe(f.ctx, r.Code)
	require.NoError(t, err)
	defer stop()

	_, err = f.reg.JoinRoom(f.ctx, r.Code, ident("bravo"))
	require.NoError(t, err)
	_, err = f.reg.StartGame(f.ctx, r.Code, "")
	require.NoError(t, err)

	var got []models.RoomEventType
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("saw only %v", got)
		}
	}
	assert.Equal(t, []models.RoomEventType{models.EventPlayerJoined, models.EventGameStarted}, got)
}
