package chat

import "sync"

// State is a session's position in its lifecycle.
type State int

const (
	// StateUnauthenticated is the initial state: no identity, no room.
	StateUnauthenticated State = iota
	// StateJoined means the session holds an identity and exactly one room.
	StateJoined
	// StateLeft follows an explicit leave; the session may join again.
	StateLeft
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is the outbound side of a live client channel.
type Conn interface {
	// Send queues payload for delivery without blocking and reports whether
	// it was accepted.
	Send(payload []byte) bool
	// Closed reports whether the channel has been closed.
	Closed() bool
}

// Session is the server-side state of one connection. Transitions happen
// only through the Registry, under its lock.
type Session struct {
	id   string
	conn Conn

	mu       sync.RWMutex
	identity string
	room     string
	state    State
}

func newSession(id string, conn Conn) *Session {
	return &Session{id: id, conn: conn, state: StateUnauthenticated}
}

// ID returns the session's connection identifier.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the bound username, or "" when none is held.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Room returns the current room, or "" unless the session is joined.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) bind(identity, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.room = room
	s.state = StateJoined
}

// release clears identity and room and returns what was held.
func (s *Session) release() (identity, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, room = s.identity, s.room
	s.identity = ""
	s.room = ""
	s.state = StateLeft
	return identity, room
}

func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = ""
	s.room = ""
	s.state = StateDisconnected
}
