// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room feed.
const (
	BadSubprotocolError   = 3000 // Client connected without the "room" subprotocol.
	InvalidAuthTokenError = 3001 // Auth token missing, invalid or expired.
	InvalidRoomCodeError  = 3003 // Room does not exist or has expired.
	NotInRoomError        = 3004 // Authenticated user is not seated in the room.
)
