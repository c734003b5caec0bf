package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/auth"
	"github.com/jason-s-yu/sudokuduel/internal/cache"
	"github.com/jason-s-yu/sudokuduel/internal/game"
	"github.com/jason-s-yu/sudokuduel/internal/identity"
	"github.com/jason-s-yu/sudokuduel/internal/ledger"
	"github.com/jason-s-yu/sudokuduel/internal/metrics"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/puzzle"
	"github.com/jason-s-yu/sudokuduel/internal/room"
	"github.com/jason-s-yu/sudokuduel/internal/stats"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	solved    = "534678912672195348198342567859761423426853791713924856961537284287419635345286179"
	puzzleStr = "53..7....6..195....98....6.8...6...34..8.3..17...2...6.6....28....419..5....8..79"
)

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string) (puzzle.Pair, error) {
	return puzzle.Pair{Puzzle: puzzleStr, Solution: solved}, nil
}

// fourSource always draws the numeral 4.
type fourSource struct{}

func (fourSource) Intn(int) int { return 3 }

func newTestServer(t *testing.T) *APIServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	st := store.NewMemoryStore()
	bus := cache.NewLocalBus()
	rules := models.DefaultRules()
	m := metrics.New("test")

	iss, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)

	reg := room.NewRegistry(st, rules, puzzle.NewSource(stubGenerator{}, logger), logger)
	reg.Numbers = fourSource{}
	reg.Publisher = bus
	reg.Metrics = m

	machine := game.NewMachine(st, rules, logger)
	machine.Numbers = fourSource{}
	machine.Publisher = bus
	machine.Metrics = m

	s := NewAPIServer(logger)
	s.Identity = identity.NewLedger(st, logger)
	s.Rooms = reg
	s.Machine = machine
	s.Moves = ledger.New(st)
	s.Stats = stats.New(st)
	s.Issuer = iss
	s.Feed = bus
	s.Metrics = m
	s.PublicURL = "http://duel.test"
	s.MaxLives = rules.MaxLives
	return s
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Cookie", "auth_token="+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func signUp(t *testing.T, h http.Handler, nickname string) createUserResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/users", "", map[string]string{"nickname": nickname})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp createUserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateUserAndMe(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodPost, "/users", "", map[string]string{"nickname": "alpha"})
	require.Equal(t, http.StatusCreated, w.Code)
	cookie := w.Result().Cookies()
	require.NotEmpty(t, cookie)
	assert.Equal(t, "auth_token", cookie[0].Name)

	me := do(t, h, http.MethodGet, "/users/me", cookie[0].Value, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"nickname":"alpha"`)

	dup := do(t, h, http.MethodPost, "/users", "", map[string]string{"nickname": "ALPHA"})
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Contains(t, dup.Body.String(), "nickname_taken")

	gen := do(t, h, http.MethodPost, "/users", "", nil)
	require.Equal(t, http.StatusCreated, gen.Code)
	var resp createUserResponse
	require.NoError(t, json.Unmarshal(gen.Body.Bytes(), &resp))
	assert.True(t, identity.ValidNickname(resp.Nickname))

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/users/me", "", nil).Code)
}

func TestRoomFlow(t *testing.T) {
	h := newTestServer(t).Handler()
	alpha := signUp(t, h, "alpha")
	bravo := signUp(t, h, "bravo")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/rooms", "", nil).Code)

	w := do(t, h, http.MethodPost, "/rooms", alpha.Token, map[string]string{"difficulty": "easy"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created roomView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	base := "/rooms/" + created.Code

	w = do(t, h, http.MethodPost, base+"/start", alpha.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "too_few_players")

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/join", bravo.Token, nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, base+"/join", bravo.Token, nil).Code)

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, base+"/start", bravo.Token, nil).Code)

	w = do(t, h, http.MethodPost, base+"/start", alpha.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "solution")
	assert.NotContains(t, w.Body.String(), solved)
	assert.NotContains(t, w.Body.String(), "finishedAt", "unfinished games carry no finish time")

	w = do(t, h, http.MethodPost, base+"/moves", bravo.Token, map[string]int{"position": 2})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_your_turn")

	w = do(t, h, http.MethodPost, base+"/moves", alpha.Token, map[string]int{"position": 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, base+"/moves", alpha.Token, map[string]int{"position": 2, "expectedMoveNumber": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var mv moveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mv))
	assert.True(t, mv.IsCorrect)
	assert.Equal(t, 1, mv.Move.MoveNumber)
	assert.Equal(t, byte('4'), mv.Room.Game.Board[2])
	assert.NotContains(t, w.Body.String(), solved)

	w = do(t, h, http.MethodGet, base+"/moves", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var moves []models.Move
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &moves))
	assert.Len(t, moves, 1)

	w = do(t, h, http.MethodGet, base+"/result", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res resultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Finished)
	assert.Equal(t, 1, res.Moves)
	assert.Equal(t, mv.Room.Game.Board, res.Board)

	w = do(t, h, http.MethodGet, base+"/qr", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/rooms/NOPE", "", nil).Code)

	w = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_rooms_created_total 1")
}

func TestStatsEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	alpha := signUp(t, h, "alpha")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/players/not-a-uuid/stats", "", nil).Code)

	w := do(t, h, http.MethodGet, "/players/"+alpha.UID.String()+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st models.PlayerStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, alpha.UID, st.UID)
	assert.Zero(t, st.GamesPlayed)
}

// unreadableMoves fails every move-history read.
type unreadableMoves struct {
	store.Store
}

func (unreadableMoves) ListMoves(context.Context, string) ([]models.Move, error) {
	return nil, errors.New("connection refused")
}

func TestMoveHistoryOutageIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.Moves = ledger.New(unreadableMoves{store.NewMemoryStore()})
	h := s.Handler()
	alpha := signUp(t, h, "alpha")

	w := do(t, h, http.MethodPost, "/rooms", alpha.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created roomView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(t, h, http.MethodGet, "/rooms/"+created.Code+"/moves", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "storage_unavailable")
}

func TestStatusForKinds(t *testing.T) {
	cases := map[error]int{
		apperr.ErrInvalidPosition:    http.StatusBadRequest,
		apperr.ErrRoomNotFound:       http.StatusNotFound,
		apperr.ErrNotYourTurn:        http.StatusConflict,
		apperr.ErrConflict:           http.StatusConflict,
		apperr.ErrStorageUnavailable: http.StatusServiceUnavailable,
		fmt.Errorf("plain"):          http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}

	w := httptest.NewRecorder()
	writeError(w, nil, fmt.Errorf("%w: room X", apperr.ErrConflict))
	assert.Contains(t, w.Body.String(), `"retryable":true`)
}

func TestRoomWebSocket(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	alpha := signUp(t, h, "alpha")
	bravo := signUp(t, h, "bravo")

	w := do(t, h, http.MethodPost, "/rooms", alpha.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created roomView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	base := "/rooms/" + created.Code
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/join", bravo.Token, nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/start", alpha.Token, nil).Code)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"room"},
		HTTPHeader:   http.Header{"Authorization": []string{"Bearer " + alpha.Token}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var msg wsOutbound
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	assert.Equal(t, "room_state", msg.Type)
	require.NotNil(t, msg.Room)
	assert.Equal(t, 4, msg.Room.Game.CurrentNumber)

	require.NoError(t, wsjson.Write(ctx, c, wsInbound{Type: "move", Position: 2}))

	seen := map[string]bool{}
	for !(seen["move_result"] && seen[string(models.EventMoveApplied)]) {
		var m wsOutbound
		require.NoError(t, wsjson.Read(ctx, c, &m))
		seen[m.Type] = true
		if m.Type == "move_result" {
			require.NotNil(t, m.Result)
			assert.True(t, m.Result.IsCorrect)
		}
	}

	require.NoError(t, wsjson.Write(ctx, c, wsInbound{Type: "move", Position: 3}))
	var errMsg wsOutbound
	for errMsg.Type != "error" {
		require.NoError(t, wsjson.Read(ctx, c, &errMsg))
	}
	assert.Equal(t, "not_your_turn", errMsg.Error)
}

func TestRoomWebSocketRejectsOutsider(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	alpha := signUp(t, h, "alpha")
	outsider := signUp(t, h, "outsider")

	w := do(t, h, http.MethodPost, "/rooms", alpha.Token, nil)
	var created roomView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	srv := httptest.NewServer(h)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + created.Code + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"room"},
		HTTPHeader:   http.Header{"Authorization": []string{"Bearer " + outsider.Token}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusCode(NotInRoomError), websocket.CloseStatus(err))
}
