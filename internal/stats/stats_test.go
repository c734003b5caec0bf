package stats

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldCreditsEveryParticipantAndWinner(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	room := &models.Room{
		Players: []models.PlayerState{{UID: a}, {UID: b}, {UID: c}},
		Game:    &models.GameState{Winner: b},
	}

	var m store.Mutation
	Fold(&m, room)

	require.Len(t, m.Stats, 3)
	assert.Equal(t, models.StatDelta{UID: a, GamesPlayed: 1}, m.Stats[0])
	assert.Equal(t, models.StatDelta{UID: b, GamesPlayed: 1, GamesWon: 1}, m.Stats[1])
	assert.Equal(t, models.StatDelta{UID: c, GamesPlayed: 1}, m.Stats[2])
}

func TestFoldSkipsUndecidedGames(t *testing.T) {
	var m store.Mutation
	Fold(&m, &models.Room{Players: []models.PlayerState{{UID: uuid.New()}}, Game: &models.GameState{}})
	Fold(&m, &models.Room{})
	assert.Empty(t, m.Stats)
}

func TestAggregatorGetDefaultsToZero(t *testing.T) {
	uid := uuid.New()
	st, err := New(store.NewMemoryStore()).Get(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, models.PlayerStats{UID: uid}, st)
}
