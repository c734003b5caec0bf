// internal/models/stats.go
package models

import "github.com/google/uuid"

// PlayerStats are the per-player counters maintained at game finish.
type PlayerStats struct {
	UID         uuid.UUID `json:"uid"`
	GamesPlayed int       `json:"gamesPlayed"`
	GamesWon    int       `json:"gamesWon"`
}

// StatDelta is an increment applied in the same unit as a finishing move.
type StatDelta struct {
	UID         uuid.UUID `json:"uid"`
	GamesPlayed int       `json:"gamesPlayed"`
	GamesWon    int       `json:"gamesWon"`
}
