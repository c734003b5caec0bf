package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr, true
	}
	return nil, false
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var r models.Room
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode room document: %w", err)
	}
	r.Version = version
	return &r, nil
}

func (p *Postgres) ReadRoom(ctx context.Context, code string) (*models.Room, error) {
	q := `SELECT doc, version FROM rooms WHERE code = $1`
	return scanRoom(p.Pool.QueryRow(ctx, q, code))
}

func (p *Postgres) InsertRoom(ctx context.Context, room *models.Room) error {
	stored := room.Clone()
	stored.Version = 1
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.Code, err)
	}

	q := `
		INSERT INTO rooms (code, host_uid, status, version, doc, created_at, expire_at)
		VALUES ($1, $2, $3, 1, $4, $5, $6)
		ON CONFLICT (code) DO NOTHING
	`
	tag, err := p.Pool.Exec(ctx, q, room.Code, room.Host.UID, string(room.Status), doc, room.CreatedAt, room.ExpireAt)
	if err != nil {
		return fmt.Errorf("insert room %s: %w", room.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyExists
	}
	room.Version = 1
	return nil
}

// CommitRoom rewrites the room document, appends moves and adds stat deltas
// in one transaction. The version predicate on the UPDATE is the optimistic
// lock; the moves primary key backs up the sequence check.
func (p *Postgres) CommitRoom(ctx context.Context, code string, expectedVersion int64, m store.Mutation) error {
	if m.Room == nil || m.Room.Code != code {
		return fmt.Errorf("commit room %s: mutation room mismatch", code)
	}
	stored := m.Room.Clone()
	stored.Version = expectedVersion + 1
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", code, err)
	}

	err = pgx.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE rooms
			SET doc = $1, status = $2, expire_at = $3, version = version + 1
			WHERE code = $4 AND version = $5
		`, doc, string(stored.Status), stored.ExpireAt, code, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`, code).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return store.ErrNotFound
			}
			return store.ErrConflict
		}

		if len(m.Moves) > 0 {
			var count int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM moves WHERE room_code = $1`, code).Scan(&count); err != nil {
				return err
			}
			for i, mv := range m.Moves {
				if mv.MoveNumber != count+1+i {
					return store.ErrConflict
				}
				if err := insertMoveTx(ctx, tx, code, mv); err != nil {
					return err
				}
			}
		}

		for _, d := range m.Stats {
			_, err := tx.Exec(ctx, `
				INSERT INTO player_stats (uid, games_played, games_won)
				VALUES ($1, $2, $3)
				ON CONFLICT (uid) DO UPDATE
				SET games_played = player_stats.games_played + EXCLUDED.games_played,
				    games_won = player_stats.games_won + EXCLUDED.games_won
			`, d.UID, d.GamesPlayed, d.GamesWon)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, ok := isUniqueViolation(err); ok {
			return store.ErrConflict
		}
		return fmt.Errorf("commit room %s: %w", code, err)
	}
	m.Room.Version = stored.Version
	return nil
}

func insertMoveTx(ctx context.Context, tx pgx.Tx, code string, mv models.Move) error {
	q := `
		INSERT INTO moves (
			room_code, move_number, player_id, player, position,
			number_placed, is_valid, chosen_next_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, q,
		code, mv.MoveNumber, mv.PlayerID, mv.Player, mv.Position,
		mv.NumberPlaced, mv.IsValid, mv.ChosenNextNumber, mv.Timestamp,
	)
	return err
}

func (p *Postgres) ListRoomsByHost(ctx context.Context, host uuid.UUID) ([]*models.Room, error) {
	rows, err := p.Pool.Query(ctx, `SELECT doc, version FROM rooms WHERE host_uid = $1 ORDER BY created_at`, host)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListMoves(ctx context.Context, code string) ([]models.Move, error) {
	q := `
		SELECT move_number, player_id, player, position, number_placed,
		       is_valid, chosen_next_number, created_at
		FROM moves
		WHERE room_code = $1
		ORDER BY move_number
	`
	rows, err := p.Pool.Query(ctx, q, code)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	var out []models.Move
	for rows.Next() {
		mv := models.Move{RoomCode: code}
		if err := rows.Scan(
			&mv.MoveNumber, &mv.PlayerID, &mv.Player, &mv.Position, &mv.NumberPlaced,
			&mv.IsValid, &mv.ChosenNextNumber, &mv.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

func (p *Postgres) CountMoves(ctx context.Context, code string) (int, error) {
	var n int
	if err := p.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM moves WHERE room_code = $1`, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("count moves: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes expired rooms; their moves go with them by cascade.
func (p *Postgres) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM rooms WHERE expire_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge rooms: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
