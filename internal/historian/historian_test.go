// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanQueue pops from a buffered channel.
type chanQueue chan models.RoomEvent

func (q chanQueue) Pop(ctx context.Context, timeout time.Duration) (*models.RoomEvent, error) {
	select {
	case ev := <-q:
		return &ev, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.RoomEvent
	fail    bool
}

func (s *recordingSink) InsertEvents(_ context.Context, events []models.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]models.RoomEvent(nil), events...))
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func event(code string, v int64) models.RoomEvent {
	return models.RoomEvent{RoomCode: code, Type: models.EventMoveApplied, ActorID: uuid.New(), Version: v}
}

func TestRunDrainsQueueInBatches(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := make(chanQueue, 10)
	sink := &recordingSink{}
	svc := New(q, sink, nil, logger)
	svc.BatchSize = 3
	svc.FlushInterval = 20 * time.Millisecond
	svc.PopTimeout = 10 * time.Millisecond

	for i := 1; i <= 7; i++ {
		q <- event("R1", int64(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { svc.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return sink.total() == 7 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		assert.LessOrEqual(t, len(b), 3)
	}
	assert.Equal(t, int64(1), sink.batches[0][0].Version)
}

func TestFlushKeepsEventsOnFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recordingSink{fail: true}
	svc := New(nil, sink, nil, logger)
	svc.MaxPending = 3

	for i := 1; i <= 4; i++ {
		svc.append(event("R2", int64(i)))
	}
	assert.Equal(t, 0, svc.Flush(context.Background()))
	assert.Equal(t, 3, svc.Pending(), "oldest event dropped past the cap")
	assert.NotEmpty(t, hook.AllEntries())

	sink.fail = false
	assert.Equal(t, 3, svc.Flush(context.Background()))
	assert.Equal(t, int64(2), sink.batches[0][0].Version)
	assert.Equal(t, 0, svc.Pending())
}

func TestSweepPurgesExpiredRooms(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, exp := range []time.Duration{-time.Minute, time.Hour} {
		require.NoError(t, st.InsertRoom(ctx, &models.Room{
			Code:     []string{"OLD", "NEW"}[i],
			Host:     models.Identity{UID: uuid.New()},
			ExpireAt: now.Add(exp),
		}))
	}

	svc := New(nil, &recordingSink{}, st, logger)
	svc.Now = func() time.Time { return now }
	assert.Equal(t, 1, svc.Sweep(ctx))

	_, err := st.ReadRoom(ctx, "OLD")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.ReadRoom(ctx, "NEW")
	assert.NoError(t, err)
}
