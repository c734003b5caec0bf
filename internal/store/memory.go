// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// MemoryStore keeps rooms, moves, profiles and stats in process memory.
// A single mutex makes every commit atomic and isolated; it is used by tests
// and when the server runs without a database.
type MemoryStore struct {
	mu        sync.Mutex
	rooms     map[string]*models.Room
	moves     map[string][]models.Move
	profiles  map[uuid.UUID]models.Profile
	nicknames map[string]uuid.UUID // lowercased nickname -> uid
	stats     map[uuid.UUID]models.PlayerStats
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[string]*models.Room),
		moves:     make(map[string][]models.Move),
		profiles:  make(map[uuid.UUID]models.Profile),
		nicknames: make(map[string]uuid.UUID),
		stats:     make(map[uuid.UUID]models.PlayerStats),
	}
}

func (s *MemoryStore) ReadRoom(ctx context.Context, code string) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) InsertRoom(ctx context.Context, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.Code]; exists {
		return ErrAlreadyExists
	}
	stored := room.Clone()
	stored.Version = 1
	s.rooms[room.Code] = stored
	room.Version = 1
	return nil
}

func (s *MemoryStore) CommitRoom(ctx context.Context, code string, expectedVersion int64, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Room == nil || m.Room.Code != code {
		return fmt.Errorf("commit room %s: mutation room mismatch", code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rooms[code]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	next := len(s.moves[code]) + 1
	for i, mv := range m.Moves {
		if mv.MoveNumber != next+i {
			return ErrConflict
		}
	}

	stored := m.Room.Clone()
	stored.Version = expectedVersion + 1
	s.rooms[code] = stored
	m.Room.Version = stored.Version

	s.moves[code] = append(s.moves[code], m.Moves...)
	for _, d := range m.Stats {
		st := s.stats[d.UID]
		st.UID = d.UID
		st.GamesPlayed += d.GamesPlayed
		st.GamesWon += d.GamesWon
		s.stats[d.UID] = st
	}
	return nil
}

func (s *MemoryStore) ListRoomsByHost(ctx context.Context, host uuid.UUID) ([]*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Room
	for _, r := range s.rooms {
		if r.Host.UID == host {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListMoves(ctx context.Context, code string) ([]models.Move, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Move(nil), s.moves[code]...), nil
}

func (s *MemoryStore) CountMoves(ctx context.Context, code string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.moves[code]), nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, r := range s.rooms {
		if r.Expired(now) {
			delete(s.rooms, code)
			delete(s.moves, code)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateProfile(ctx context.Context, p models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.ToLower(p.Nickname)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.nicknames[key]; taken {
		return ErrNicknameTaken
	}
	if _, exists := s.profiles[p.UID]; exists {
		return ErrAlreadyExists
	}
	s.nicknames[key] = p.UID
	s.profiles[p.UID] = p
	return nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nicknames[strings.ToLower(nickname)]
	return ok, nil
}

func (s *MemoryStore) GetStats(ctx context.Context, uid uuid.UUID) (models.PlayerStats, error) {
	if err := ctx.Err(); err != nil {
		return models.PlayerStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[uid]
	st.UID = uid
	return st, nil
}
