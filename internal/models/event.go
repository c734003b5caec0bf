// internal/models/event.go
package models

import "github.com/google/uuid"

// RoomEventType names a committed room transition.
type RoomEventType string

const (
	EventRoomCreated  RoomEventType = "room_created"
	EventPlayerJoined RoomEventType = "player_joined"
	EventGameStarted  RoomEventType = "game_started"
	EventMoveApplied  RoomEventType = "move_applied"
	EventGameFinished RoomEventType = "game_finished"
)

// RoomEvent is published after a commit. It is informational only; the room
// document remains the source of truth.
type RoomEvent struct {
	RoomCode  string                 `json:"room_code"`
	Type      RoomEventType          `json:"type"`
	ActorID   uuid.UUID              `json:"actor_id"`
	Version   int64                  `json:"version"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
