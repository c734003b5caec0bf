package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Postgres is the pgx-backed storage actor. It implements store.Store and
// store.IdentityStore, and persists historian events.
type Postgres struct {
	Pool   *pgxpool.Pool
	logger *logrus.Logger
}

// Connect opens a pool against url and pings it.
func Connect(ctx context.Context, url string, logger *logrus.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"host":     config.ConnConfig.Host,
			"database": config.ConnConfig.Database,
		}).Info("connected to database")
	}
	return &Postgres{Pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.Pool.Close()
}

// Migrate creates any missing tables. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	uid        UUID PRIMARY KEY,
	nickname   TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS nicknames (
	nickname_lower TEXT PRIMARY KEY,
	uid            UUID NOT NULL REFERENCES profiles (uid) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS player_stats (
	uid          UUID PRIMARY KEY,
	games_played INT NOT NULL DEFAULT 0,
	games_won    INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rooms (
	code       TEXT PRIMARY KEY,
	host_uid   UUID NOT NULL,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expire_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rooms_host_idx ON rooms (host_uid);
CREATE INDEX IF NOT EXISTS rooms_expire_idx ON rooms (expire_at);

CREATE TABLE IF NOT EXISTS moves (
	room_code          TEXT NOT NULL REFERENCES rooms (code) ON DELETE CASCADE,
	move_number        INT NOT NULL,
	player_id          UUID NOT NULL,
	player             TEXT NOT NULL,
	position           INT NOT NULL,
	number_placed      INT NOT NULL,
	is_valid           BOOLEAN NOT NULL,
	chosen_next_number INT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_code, move_number)
);

CREATE TABLE IF NOT EXISTS room_events (
	id          BIGSERIAL PRIMARY KEY,
	room_code   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	actor_id    UUID NOT NULL,
	version     BIGINT NOT NULL,
	payload     JSONB,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS room_events_room_idx ON room_events (room_code, id);
`
