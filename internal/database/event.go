package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// InsertEvents persists a historian batch in a single transaction.
func (p *Postgres) InsertEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO room_events (room_code, event_type, actor_id, version, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		batch := &pgx.Batch{}
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode %s payload: %w", ev.Type, err)
			}
			batch.Queue(q, ev.RoomCode, string(ev.Type), ev.ActorID, ev.Version, payload, time.UnixMilli(ev.Timestamp))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// CountEvents returns how many events are recorded for a room.
func (p *Postgres) CountEvents(ctx context.Context, code string) (int, error) {
	var n int
	if err := p.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM room_events WHERE room_code = $1`, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
