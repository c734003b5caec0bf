// internal/cache/bus.go
package cache

import (
	"context"
	"sync"

	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/sirupsen/logrus"
)

// Publisher receives an event after each committed room transition.
type Publisher interface {
	Publish(ctx context.Context, ev models.RoomEvent) error
}

// Subscriber streams a room's events to live watchers.
type Subscriber interface {
	Subscribe(ctx context.Context, code string) (<-chan models.RoomEvent, func(), error)
}

// Bus is both ends; RedisBus and LocalBus implement it.
type Bus interface {
	Publisher
	Subscriber
}

// PublishBestEffort sends ev if p is set and logs, rather than returns, a
// failure. The room document is already committed when this runs.
func PublishBestEffort(ctx context.Context, p Publisher, logger *logrus.Logger, ev models.RoomEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil && logger != nil {
		logger.WithFields(logrus.Fields{
			"room":  ev.RoomCode,
			"event": ev.Type,
		}).Warnf("room event not published: %v", err)
	}
}

// LocalBus fans events out to in-process subscribers. It is used when no
// Redis address is configured.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[chan models.RoomEvent]struct{}
}

// NewLocalBus returns an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[chan models.RoomEvent]struct{})}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (b *LocalBus) Publish(_ context.Context, ev models.RoomEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.RoomCode] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, code string) (<-chan models.RoomEvent, func(), error) {
	ch := make(chan models.RoomEvent, 16)

	b.mu.Lock()
	if b.subs[code] == nil {
		b.subs[code] = make(map[chan models.RoomEvent]struct{})
	}
	b.subs[code][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[code], ch)
			if len(b.subs[code]) == 0 {
				delete(b.subs, code)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}
