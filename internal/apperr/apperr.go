// Package apperr classifies the failures returned by the room, game and identity
// services so transports can decide whether to retry, resync or reject.
package apperr

import "errors"

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: malformed input, never retried.
	KindValidation
	// KindNotFound: the room or user is absent.
	KindNotFound
	// KindStateConflict: the request is invalid for the current state.
	KindStateConflict
	// KindConcurrency: the atomic commit lost a race; retry from a fresh read.
	KindConcurrency
	// KindCollaborator: storage or another collaborator is unavailable.
	KindCollaborator
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindConcurrency:
		return "concurrency_conflict"
	case KindCollaborator:
		return "collaborator_failure"
	default:
		return "unknown"
	}
}

// Error is a sentinel with a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidArgument = newError(KindValidation, "invalid_argument", "invalid argument")
	ErrInvalidPosition = newError(KindValidation, "invalid_position", "position out of range")

	ErrRoomNotFound    = newError(KindNotFound, "room_not_found", "room not found")
	ErrProfileNotFound = newError(KindNotFound, "profile_not_found", "profile not found")

	ErrNicknameTaken     = newError(KindStateConflict, "nickname_taken", "nickname already taken")
	ErrQuotaExceeded     = newError(KindStateConflict, "quota_exceeded", "too many active rooms for host")
	ErrAlreadyJoined     = newError(KindStateConflict, "already_joined", "player already in room")
	ErrRoomFull          = newError(KindStateConflict, "room_full", "room is full")
	ErrAlreadyStarted    = newError(KindStateConflict, "already_started", "game already started")
	ErrTooFewPlayers     = newError(KindStateConflict, "too_few_players", "not enough players to start")
	ErrTooManyPlayers    = newError(KindStateConflict, "too_many_players", "too many players to start")
	ErrGameNotStarted    = newError(KindStateConflict, "game_not_started", "game has not started")
	ErrGameFinished      = newError(KindStateConflict, "game_finished", "game is finished")
	ErrNotYourTurn       = newError(KindStateConflict, "not_your_turn", "not your turn")
	ErrCellAlreadyFilled = newError(KindStateConflict, "cell_already_filled", "cell already filled")
	ErrStaleRequest      = newError(KindStateConflict, "stale_request", "move number already applied")

	ErrConflict = newError(KindConcurrency, "conflict", "room changed concurrently, retry")

	ErrStorageUnavailable = newError(KindCollaborator, "storage_unavailable", "storage unavailable")
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// Retryable reports whether the whole operation may be retried as-is.
func Retryable(err error) bool {
	return KindOf(err) == KindConcurrency
}
