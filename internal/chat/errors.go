package chat

import "errors"

// Validation failures. Each one is reported to the originating client only.
var (
	ErrNameTaken     = errors.New("username already taken")
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room does not exist")
	ErrInvalidName   = errors.New("username is required")
	ErrInvalidRoom   = errors.New("room name is required")
	ErrAlreadyJoined = errors.New("session already joined a room")
	ErrNotJoined     = errors.New("session has not joined a room")
	ErrSessionClosed = errors.New("session is disconnected")
	ErrMalformed     = errors.New("malformed envelope")
)

// clientMessage maps a validation error to the text shown to the user.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrNameTaken):
		return "Username already taken."
	case errors.Is(err, ErrRoomExists):
		return "Room already exists."
	case errors.Is(err, ErrRoomNotFound):
		return "Room does not exist."
	case errors.Is(err, ErrInvalidName):
		return "Username is required."
	case errors.Is(err, ErrInvalidRoom):
		return "Room name is required."
	case errors.Is(err, ErrAlreadyJoined):
		return "Already in a room. Leave it first."
	case errors.Is(err, ErrNotJoined):
		return "Join a room before sending messages."
	default:
		return "Request could not be processed."
	}
}
