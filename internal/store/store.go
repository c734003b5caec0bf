// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

var (
	// ErrNotFound is returned when a room or profile does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a commit's expected version is stale or its
	// move sequence does not continue the ledger.
	ErrConflict = errors.New("store: version conflict")
	// ErrAlreadyExists is returned when inserting a room whose code is taken.
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrNicknameTaken is returned when a nickname reservation collides.
	ErrNicknameTaken = errors.New("store: nickname taken")
)

// Mutation is everything one state transition writes. It is applied as a
// single unit: the room document replaces the stored one, Moves are appended
// in order and Stats are added to the per-player counters.
type Mutation struct {
	Room  *models.Room
	Moves []models.Move
	Stats []models.StatDelta
}

// Store is the room storage actor. Implementations serialize commits per room.
type Store interface {
	// ReadRoom returns a snapshot carrying the version it was read at.
	ReadRoom(ctx context.Context, code string) (*models.Room, error)
	// InsertRoom stores a new room at version 1.
	InsertRoom(ctx context.Context, room *models.Room) error
	// CommitRoom applies m if the stored version still equals expectedVersion.
	CommitRoom(ctx context.Context, code string, expectedVersion int64, m Mutation) error
	// ListRoomsByHost returns every room hosted by uid, expired or not.
	ListRoomsByHost(ctx context.Context, host uuid.UUID) ([]*models.Room, error)
	// ListMoves returns a room's ledger ordered by move number.
	ListMoves(ctx context.Context, code string) ([]models.Move, error)
	// CountMoves returns the number of ledger entries for a room.
	CountMoves(ctx context.Context, code string) (int, error)
	// PurgeExpired deletes rooms (and their moves) whose expiry is at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// IdentityStore persists profiles, nickname reservations and player stats.
type IdentityStore interface {
	// CreateProfile writes the profile and its case-insensitive nickname
	// reservation together, or neither.
	CreateProfile(ctx context.Context, p models.Profile) error
	GetProfile(ctx context.Context, uid uuid.UUID) (*models.Profile, error)
	NicknameExists(ctx context.Context, nickname string) (bool, error)
	GetStats(ctx context.Context, uid uuid.UUID) (models.PlayerStats, error)
}
