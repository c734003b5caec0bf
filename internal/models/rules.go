// internal/models/rules.go
package models

import "time"

// Rules captures the game-wide configuration shared by the room registry and
// the game state machine.
type Rules struct {
	// MaxLives is the number of lives every player starts a game with.
	MaxLives int

	// MinPlayers and MaxPlayers bound the roster of a startable room.
	MinPlayers int
	MaxPlayers int

	// RoomQuota is how many live (unfinished, unexpired) rooms one host may own.
	RoomQuota int

	// RoomTTL is the safety-net expiry set when a room is created.
	RoomTTL time.Duration

	// FinishedRetention replaces the expiry once a game finishes.
	FinishedRetention time.Duration

	// SkipExhaustedNumbers restricts numeral draws to numerals that still
	// have a blank target cell. Off by default: draws are uniform over 1-9.
	SkipExhaustedNumbers bool
}

// DefaultRules mirrors the production game config.
func DefaultRules() Rules {
	return Rules{
		MaxLives:          5,
		MinPlayers:        2,
		MaxPlayers:        3,
		RoomQuota:         5,
		RoomTTL:           2 * time.Hour,
		FinishedRetention: 2 * time.Hour,
	}
}
