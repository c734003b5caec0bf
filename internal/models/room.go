// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// Settings are fixed at room creation. Difficulty may be overridden at start.
type Settings struct {
	Difficulty  string `json:"difficulty,omitempty"`
	TimeLimit   int    `json:"timeLimit,omitempty"` // seconds, 0 => none
	PrivateGame bool   `json:"privateGame"`
}

// PlayerState is one roster entry. Lives only ever decrease during a game.
type PlayerState struct {
	UID             uuid.UUID `json:"uid"`
	Nickname        string    `json:"nickname"`
	Lives           int       `json:"lives"`
	IsCurrentPlayer bool      `json:"isCurrentPlayer"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// Room is the single document that every state-changing operation reads and
// rewrites as a unit. Players is kept in join order.
type Room struct {
	Code      string        `json:"code"`
	Host      Identity      `json:"host"`
	Status    RoomStatus    `json:"status"`
	Players   []PlayerState `json:"players"`
	Settings  Settings      `json:"settings"`
	Game      *GameState    `json:"game,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpireAt  time.Time     `json:"expireAt"`

	// Version is assigned by the store and bumped on every commit.
	Version int64 `json:"version"`
}

// Player returns the index of uid in the roster, or -1.
func (r *Room) Player(uid uuid.UUID) int {
	for i := range r.Players {
		if r.Players[i].UID == uid {
			return i
		}
	}
	return -1
}

// HasPlayer reports whether uid is on the roster.
func (r *Room) HasPlayer(uid uuid.UUID) bool {
	return r.Player(uid) >= 0
}

// CurrentPlayer returns the index of the player holding the turn, or -1.
func (r *Room) CurrentPlayer() int {
	for i := range r.Players {
		if r.Players[i].IsCurrentPlayer {
			return i
		}
	}
	return -1
}

// Expired reports whether the room is past its expiry at now.
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpireAt.IsZero() && !now.Before(r.ExpireAt)
}

// Live reports whether the room counts against its host's quota.
func (r *Room) Live(now time.Time) bool {
	return r.Status != StatusFinished && !r.Expired(now)
}

// Clone returns a deep copy so a mutation never aliases a stored snapshot.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = append([]PlayerState(nil), r.Players...)
	if r.Game != nil {
		g := *r.Game
		c.Game = &g
	}
	return &c
}
