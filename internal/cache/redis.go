// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the historian drains.
const DefaultQueueName = "sudokuduel_events"

// DefaultChannel prefixes per-room pub/sub channels.
const DefaultChannel = "sudokuduel_rooms"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisBus pushes every event onto a list for the historian and publishes it
// on the room's channel for live subscribers.
type RedisBus struct {
	rdb     *redis.Client
	queue   string
	channel string
	logger  *logrus.Logger
}

// NewRedisBus wraps rdb. Empty queue/channel names fall back to the defaults.
func NewRedisBus(rdb *redis.Client, queue, channel string, logger *logrus.Logger) *RedisBus {
	if queue == "" {
		queue = DefaultQueueName
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, queue: queue, channel: channel, logger: logger}
}

func (b *RedisBus) roomChannel(code string) string {
	return b.channel + ":" + code
}

// Publish sends the event in one pipeline round trip.
func (b *RedisBus) Publish(ctx context.Context, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal RoomEvent: %w", err)
	}
	_, err = b.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, b.queue, data)
		p.Publish(ctx, b.roomChannel(ev.RoomCode), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s for room %s: %w", ev.Type, ev.RoomCode, err)
	}
	return nil
}

// Subscribe streams events for one room until ctx ends or cancel is called.
func (b *RedisBus) Subscribe(ctx context.Context, code string) (<-chan models.RoomEvent, func(), error) {
	ps := b.rdb.Subscribe(ctx, b.roomChannel(code))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe room %s: %w", code, err)
	}

	out := make(chan models.RoomEvent, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev models.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				if b.logger != nil {
					b.logger.WithField("room", code).Warnf("dropping malformed room event: %v", err)
				}
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = ps.Close() }, nil
}

// Pop blocks up to timeout for the next queued event. It returns nil, nil
// when the queue stays empty.
func (b *RedisBus) Pop(ctx context.Context, timeout time.Duration) (*models.RoomEvent, error) {
	res, err := b.rdb.BLPop(ctx, timeout, b.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", b.queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	// res[0] is the queue name and res[1] the payload.
	var ev models.RoomEvent
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return nil, fmt.Errorf("invalid room event: %w", err)
	}
	return &ev, nil
}
