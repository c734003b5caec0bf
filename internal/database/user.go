package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
)

// CreateProfile inserts the profile and its lowercased nickname reservation
// in one transaction.
func (p *Postgres) CreateProfile(ctx context.Context, prof models.Profile) error {
	err := pgx.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO profiles (uid, nickname, email, created_at) VALUES ($1, $2, $3, $4)`,
			prof.UID, prof.Nickname, prof.Email, prof.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO nicknames (nickname_lower, uid) VALUES ($1, $2)`,
			strings.ToLower(prof.Nickname), prof.UID)
		return err
	})
	if err == nil {
		return nil
	}
	if pgErr, ok := isUniqueViolation(err); ok {
		if pgErr.TableName == "nicknames" || pgErr.ConstraintName == "nicknames_pkey" {
			return store.ErrNicknameTaken
		}
		return store.ErrAlreadyExists
	}
	return fmt.Errorf("failed to insert profile: %w", err)
}

func (p *Postgres) GetProfile(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	var prof models.Profile
	q := `SELECT uid, nickname, email, created_at FROM profiles WHERE uid = $1`
	err := p.Pool.QueryRow(ctx, q, uid).Scan(&prof.UID, &prof.Nickname, &prof.Email, &prof.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &prof, nil
}

func (p *Postgres) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM nicknames WHERE nickname_lower = $1)`
	if err := p.Pool.QueryRow(ctx, q, strings.ToLower(nickname)).Scan(&exists); err != nil {
		return false, fmt.Errorf("nickname lookup: %w", err)
	}
	return exists, nil
}

func (p *Postgres) GetStats(ctx context.Context, uid uuid.UUID) (models.PlayerStats, error) {
	st := models.PlayerStats{UID: uid}
	q := `SELECT games_played, games_won FROM player_stats WHERE uid = $1`
	err := p.Pool.QueryRow(ctx, q, uid).Scan(&st.GamesPlayed, &st.GamesWon)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return st, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}
