package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/game"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type createRoomRequest struct {
	Difficulty  string `json:"difficulty"`
	TimeLimit   int    `json:"timeLimit"`
	PrivateGame bool   `json:"privateGame"`
}

type startGameRequest struct {
	Difficulty string `json:"difficulty"`
}

type startGameResponse struct {
	Room     roomView `json:"room"`
	Degraded bool     `json:"degraded"`
}

type moveRequest struct {
	Position           *int `json:"position"`
	ExpectedMoveNumber int  `json:"expectedMoveNumber"`
}

type moveResponse struct {
	IsCorrect bool        `json:"isCorrect"`
	Move      models.Move `json:"move"`
	Finished  bool        `json:"finished"`
	Winner    uuid.UUID   `json:"winner"`
	Room      roomView    `json:"room"`
}

type resultResponse struct {
	Finished bool                 `json:"finished"`
	Winner   string               `json:"winner,omitempty"`
	Board    string               `json:"board,omitempty"`
	Lives    map[uuid.UUID]int    `json:"lives,omitempty"`
	Players  []models.PlayerState `json:"players"`
	Moves    int                  `json:"moves"`
}

// CreateRoomHandler opens a room hosted by the caller.
func (s *APIServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, err := authenticate(s.Issuer, r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apperr.ErrInvalidArgument)
		return
	}
	room, err := s.Rooms.CreateRoom(r.Context(), id, models.Settings{
		Difficulty:  req.Difficulty,
		TimeLimit:   req.TimeLimit,
		PrivateGame: req.PrivateGame,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewRoom(room))
}

// GetRoomHandler returns the room snapshot.
func (s *APIServer) GetRoomHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room, err := s.Rooms.Room(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRoom(room))
}

// JoinRoomHandler seats the caller.
func (s *APIServer) JoinRoomHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := authenticate(s.Issuer, r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	room, err := s.Rooms.JoinRoom(r.Context(), ps.ByName("code"), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRoom(room))
}

// StartGameHandler starts the game; only the host may call it.
func (s *APIServer) StartGameHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := authenticate(s.Issuer, r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	code := ps.ByName("code")
	var req startGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apperr.ErrInvalidArgument)
		return
	}

	room, err := s.Rooms.Room(r.Context(), code)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if room.Host.UID != id.UID {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "not_host", Message: "only the host can start the game"})
		return
	}

	out, err := s.Rooms.StartGame(r.Context(), code, req.Difficulty)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, startGameResponse{Room: viewRoom(out.Room), Degraded: out.Degraded})
}

// ApplyMoveHandler places the current numeral for the caller.
func (s *APIServer) ApplyMoveHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := authenticate(s.Issuer, r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil || req.Position == nil {
		writeError(w, s.logger, apperr.ErrInvalidArgument)
		return
	}
	res, err := s.Machine.ApplyMove(r.Context(), game.MoveRequest{
		RoomCode:           ps.ByName("code"),
		PlayerID:           id.UID,
		Position:           *req.Position,
		ExpectedMoveNumber: req.ExpectedMoveNumber,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponseFor(res))
}

func moveResponseFor(res *game.MoveResult) moveResponse {
	return moveResponse{
		IsCorrect: res.IsCorrect,
		Move:      res.Move,
		Finished:  res.Finished,
		Winner:    res.Winner,
		Room:      viewRoom(res.Room),
	}
}

// ListMovesHandler returns the room's move ledger.
func (s *APIServer) ListMovesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if _, err := s.Rooms.Room(r.Context(), code); err != nil {
		writeError(w, s.logger, err)
		return
	}
	moves, err := s.Moves.Moves(r.Context(), code)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if moves == nil {
		moves = []models.Move{}
	}
	writeJSON(w, http.StatusOK, moves)
}

// ResultHandler reports whether the game is over and who won, with the board
// and lives rebuilt from the ledger.
func (s *APIServer) ResultHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	room, err := s.Rooms.Room(r.Context(), code)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	winner, over := game.CheckGameOver(room)
	resp := resultResponse{Finished: over, Winner: winner, Players: room.Players}
	if room.Game != nil {
		moves, err := s.Moves.Moves(r.Context(), code)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		st, err := game.Replay(room, s.MaxLives, moves)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		resp.Board = st.Board
		resp.Lives = st.Lives
		resp.Moves = len(moves)
	}
	writeJSON(w, http.StatusOK, resp)
}

// QRHandler renders a PNG QR code of the room's invite link.
func (s *APIServer) QRHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room, err := s.Rooms.Room(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	url := s.PublicURL + "/rooms/" + room.Code
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
