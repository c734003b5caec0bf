// internal/identity/identity.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/jason-s-yu/sudokuduel/internal/store"
	"github.com/sirupsen/logrus"
)

// MaxGenerateAttempts bounds how many random candidates GenerateUniqueNickname
// tries before falling back to a time-derived name.
const MaxGenerateAttempts = 10

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,24}$`)

var (
	adjectives = []string{
		"Brave", "Calm", "Clever", "Swift", "Quiet", "Lucky", "Bold", "Bright",
		"Eager", "Gentle", "Happy", "Jolly", "Keen", "Mighty", "Nimble", "Proud",
	}
	nouns = []string{
		"Otter", "Falcon", "Tiger", "Panda", "Fox", "Heron", "Lynx", "Raven",
		"Badger", "Koala", "Moose", "Owl", "Puffin", "Seal", "Wolf", "Yak",
	}
)

// Ledger reserves nicknames and looks up profiles.
type Ledger struct {
	store  store.IdentityStore
	logger *logrus.Logger

	// Now stamps new profiles.
	Now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
	seq uint32
}

// NewLedger returns a ledger over st.
func NewLedger(st store.IdentityStore, logger *logrus.Logger) *Ledger {
	return &Ledger{
		store:  st,
		logger: logger,
		Now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ValidNickname reports whether nickname may be reserved.
func ValidNickname(nickname string) bool {
	return nicknamePattern.MatchString(nickname)
}

// ReserveNickname creates a profile holding nickname. The profile and the
// case-insensitive reservation are written together; a collision fails with
// apperr.ErrNicknameTaken.
func (l *Ledger) ReserveNickname(ctx context.Context, nickname, email string) (models.Identity, error) {
	nickname = strings.TrimSpace(nickname)
	if !ValidNickname(nickname) {
		return models.Identity{}, fmt.Errorf("%w: nickname must be 3-24 letters, digits, '_' or '-'", apperr.ErrInvalidArgument)
	}
	p := models.Profile{
		UID:       uuid.New(),
		Nickname:  nickname,
		Email:     strings.TrimSpace(email),
		CreatedAt: l.Now().UTC(),
	}
	if err := l.store.CreateProfile(ctx, p); err != nil {
		switch {
		case errors.Is(err, store.ErrNicknameTaken):
			return models.Identity{}, fmt.Errorf("%w: %s", apperr.ErrNicknameTaken, nickname)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return models.Identity{}, err
		default:
			return models.Identity{}, fmt.Errorf("%w: create profile: %v", apperr.ErrStorageUnavailable, err)
		}
	}
	l.log().WithFields(logrus.Fields{"uid": p.UID, "nickname": p.Nickname}).Info("nickname reserved")
	return p.Identity(), nil
}

// LookupProfile returns the profile for uid, or apperr.ErrProfileNotFound.
func (l *Ledger) LookupProfile(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	if uid == uuid.Nil {
		return nil, fmt.Errorf("%w: uid is required", apperr.ErrInvalidArgument)
	}
	p, err := l.store.GetProfile(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrProfileNotFound, uid)
		}
		return nil, fmt.Errorf("%w: get profile: %v", apperr.ErrStorageUnavailable, err)
	}
	return p, nil
}

// GenerateUniqueNickname returns a nickname that was free when checked. It
// tries MaxGenerateAttempts adjective-noun-number candidates, then falls back
// to a time-derived name. The result is still subject to ReserveNickname's
// atomic check.
func (l *Ledger) GenerateUniqueNickname(ctx context.Context) (string, error) {
	for i := 0; i < MaxGenerateAttempts; i++ {
		candidate := l.candidate()
		taken, err := l.store.NicknameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: nickname lookup: %v", apperr.ErrStorageUnavailable, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	name := l.fallback()
	l.log().WithField("nickname", name).Warn("nickname namespace exhausted, using time-derived name")
	return name, nil
}

func (l *Ledger) candidate() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("%s%s%03d",
		adjectives[l.rng.Intn(len(adjectives))],
		nouns[l.rng.Intn(len(nouns))],
		l.rng.Intn(1000))
}

// fallback names carry the clock and a process-wide sequence so two calls in
// the same nanosecond still differ.
func (l *Ledger) fallback() string {
	seq := atomic.AddUint32(&l.seq, 1)
	return "player_" + strconv.FormatInt(l.Now().UnixNano(), 36) + strconv.FormatUint(uint64(seq), 36)
}

func (l *Ledger) log() *logrus.Logger {
	if l.logger == nil {
		return logrus.StandardLogger()
	}
	return l.logger
}
