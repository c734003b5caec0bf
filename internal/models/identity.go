// internal/models/identity.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an already-authenticated player. UID is the only lookup key;
// Nickname is display-only.
type Identity struct {
	UID      uuid.UUID `json:"uid"`
	Nickname string    `json:"nickname"`
}

// Profile is the persisted record created together with a nickname reservation.
type Profile struct {
	UID       uuid.UUID `json:"uid"`
	Nickname  string    `json:"nickname"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity returns the identity view of the profile.
func (p Profile) Identity() Identity {
	return Identity{UID: p.UID, Nickname: p.Nickname}
}
