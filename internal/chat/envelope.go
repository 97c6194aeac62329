package chat

import "encoding/json"

// Envelope kinds. The first four arrive from clients; the server emits
// message plus the remaining kinds.
const (
	KindJoin           = "join"
	KindMessage        = "message"
	KindCreateRoom     = "createRoom"
	KindLeave          = "leave"
	KindRoomCreated    = "roomCreated"
	KindRoomListUpdate = "roomListUpdate"
	KindJoined         = "joined"
	KindError          = "error"
	KindUserLeft       = "userLeft"
	KindUserList       = "userList"
)

// SystemUsername is the sender shown on server-generated room notices.
const SystemUsername = "System"

// TimestampLayout formats message timestamps (server local time).
const TimestampLayout = "15:04:05"

// Envelope is the union of all envelope fields. Inbound frames decode into
// it; clients and tests can decode outbound frames into it as well.
type Envelope struct {
	Type      string   `json:"type"`
	Username  string   `json:"username,omitempty"`
	Room      string   `json:"room,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Rooms     []string `json:"rooms,omitempty"`
	Users     []string `json:"users,omitempty"`
}

type messageEnvelope struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type roomEnvelope struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type roomListEnvelope struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

type userListEnvelope struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type userLeftEnvelope struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type errorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newMessage(username, text, timestamp string) messageEnvelope {
	return messageEnvelope{Type: KindMessage, Username: username, Message: text, Timestamp: timestamp}
}

func newRoomCreated(room string) roomEnvelope {
	return roomEnvelope{Type: KindRoomCreated, Room: room}
}

func newJoined(room string) roomEnvelope {
	return roomEnvelope{Type: KindJoined, Room: room}
}

func newRoomList(rooms []string) roomListEnvelope {
	return roomListEnvelope{Type: KindRoomListUpdate, Rooms: nonNil(rooms)}
}

func newUserList(users []string) userListEnvelope {
	return userListEnvelope{Type: KindUserList, Users: nonNil(users)}
}

func newUserLeft(username string) userLeftEnvelope {
	return userLeftEnvelope{Type: KindUserLeft, Username: username}
}

func newError(message string) errorEnvelope {
	return errorEnvelope{Type: KindError, Message: message}
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
