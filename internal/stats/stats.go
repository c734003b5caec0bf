// Package stats maintains per-player games-played and games-won counters.
package stats

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
)

// Fold adds one games-played increment for every participant of room and one
// games-won increment for its winner to m, so the counters commit together
// with the finishing move. It is a no-op for rooms without a winner.
func Fold(m *store.Mutation, room *models.Room) {
	if room.Game == nil || !room.Game.HasWinner() {
		return
	}
	for _, p := range room.Players {
		d := models.StatDelta{UID: p.UID, GamesPlayed: 1}
		if p.UID == room.Game.Winner {
			d.GamesWon = 1
		}
		m.Stats = append(m.Stats, d)
	}
}

// Aggregator reads the counters.
type Aggregator struct {
	store store.IdentityStore
}

// New returns an Aggregator over st.
func New(st store.IdentityStore) *Aggregator {
	return &Aggregator{store: st}
}

// Get returns uid's counters; players who never finished a game get zeros.
func (a *Aggregator) Get(ctx context.Context, uid uuid.UUID) (models.PlayerStats, error) {
	st, err := a.store.GetStats(ctx, uid)
	if err != nil {
		return models.PlayerStats{}, fmt.Errorf("get stats for %s: %w", uid, err)
	}
	return st, nil
}
