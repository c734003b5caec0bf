package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// gameView is GameState without the solution.
type gameView struct {
	Difficulty     string     `json:"difficulty"`
	Puzzle         string     `json:"puzzle"`
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

type roomView struct {
	Code     string               `json:"code"`
	Host     models.Identity      `json:"host"`
	Status   models.RoomStatus    `json:"status"`
	Players  []models.PlayerState `json:"players"`
	Settings models.Settings      `json:"settings"`
	Game     *gameView            `json:"game,omitempty"`
	ExpireAt time.Time            `json:"expireAt"`
	Version  int64                `json:"version"`
}

func viewRoom(r *models.Room) roomView {
	v := roomView{
		Code:     r.Code,
		Host:     r.Host,
		Status:   r.Status,
		Players:  r.Players,
		Settings: r.Settings,
		ExpireAt: r.ExpireAt,
		Version:  r.Version,
	}
	if g := r.Game; g != nil {
		v.Game = &gameView{
			Difficulty:     g.Difficulty,
			Puzzle:         g.Puzzle,
			Board:          g.Board,
			CurrentNumber:  g.CurrentNumber,
			LastMoveBy:     g.LastMoveBy,
			Winner:         g.Winner,
			WinnerNickname: g.WinnerNickname,
			MoveCount:      g.MoveCount,
			Degraded:       g.Degraded,
			StartedAt:      g.StartedAt,
			FinishedAt:     g.FinishedAt,
		}
	}
	return v
}
