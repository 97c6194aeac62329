// Package chat implements the room coordination engine: the registry of
// sessions and rooms, the per-session state machine, room and global fan-out,
// and the protocol dispatcher that drives them from client envelopes.
package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister receives a snapshot of the room directory after every change to
// room existence or membership.
type Persister interface {
	Submit(dir store.Directory)
}

type room struct {
	name    string
	members []string
}

func (r *room) remove(identity string) bool {
	for i, member := range r.members {
		if member == identity {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// Registry is the authoritative in-memory state. A single mutex serializes
// every operation, so check-then-act sequences are atomic and the order in
// which envelopes are queued to a room matches processing order.
//
// Invariant: identity is in rooms[x].members exactly when
// identities[identity].room == x.
type Registry struct {
	mu sync.Mutex

	sessions   map[*Session]struct{}
	identities map[string]*Session
	rooms      map[string]*room
	order      []string

	log        *zap.Logger
	persist    Persister
	now        func() time.Time
	autoCreate bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithPersister sets where directory snapshots go after topology changes.
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persist = p }
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithAutoCreate makes joins to unknown rooms create the room instead of
// failing with ErrRoomNotFound.
func WithAutoCreate(enabled bool) Option {
	return func(r *Registry) { r.autoCreate = enabled }
}

// NewRegistry builds a registry seeded with the room names from seed.
// Persisted member lists are discarded: no session is live after a restart.
func NewRegistry(seed store.Directory, opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[*Session]struct{}),
		identities: make(map[string]*Session),
		rooms:      make(map[string]*room),
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, entry := range seed {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		if _, exists := r.rooms[name]; exists {
			continue
		}
		r.addRoomLocked(name)
	}

	return r
}

// Connect registers a new connection and sends it the current room list
// before anything else can reach it.
func (r *Registry) Connect(conn Conn) *Session {
	s := newSession(uuid.NewString(), conn)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s] = struct{}{}
	r.sendLocked(s, newRoomList(r.roomNamesLocked()))

	r.log.Info("Session connected", zap.String("session", s.id), zap.Int("sessions", len(r.sessions)))
	return s
}

// CreateRoom adds an empty room, persists the directory and pushes the new
// room list to every connection. creator, when non-nil, also receives a
// roomCreated confirmation.
func (r *Registry) CreateRoom(creator *Session, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if creator != nil && creator.state == StateDisconnected {
		return ErrSessionClosed
	}
	if _, exists := r.rooms[name]; exists {
		return fmt.Errorf("create %q: %w", name, ErrRoomExists)
	}

	r.addRoomLocked(name)
	if creator != nil {
		r.sendLocked(creator, newRoomCreated(name))
	}
	r.syncLocked()
	r.broadcastGlobalLocked(newRoomList(r.roomNamesLocked()))

	r.log.Info("Room created", zap.String("room", name), zap.Int("rooms", len(r.order)))
	return nil
}

// Join binds name to the session and places it in room. It fails without
// side effects when the name is bound to another session, the room is
// unknown, or the session already holds a room.
func (r *Registry) Join(s *Session, name, roomName string) error {
	name = strings.TrimSpace(name)
	roomName = strings.TrimSpace(roomName)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return ErrSessionClosed
	case StateJoined:
		return ErrAlreadyJoined
	}
	if name == "" {
		return ErrInvalidName
	}
	if roomName == "" {
		return ErrInvalidRoom
	}
	if _, taken := r.identities[name]; taken {
		return fmt.Errorf("join as %q: %w", name, ErrNameTaken)
	}

	rm, ok := r.rooms[roomName]
	if !ok {
		if !r.autoCreate {
			return fmt.Errorf("join %q: %w", roomName, ErrRoomNotFound)
		}
		rm = r.addRoomLocked(roomName)
		r.broadcastGlobalLocked(newRoomList(r.roomNamesLocked()))
		r.log.Info("Room created on join", zap.String("room", roomName))
	}

	r.identities[name] = s
	rm.members = append(rm.members, name)
	s.bind(name, roomName)
	r.syncLocked()

	r.sendLocked(s, newJoined(roomName))
	r.broadcastToRoomLocked(roomName, newMessage(SystemUsername, name+" has joined the room.", r.timestamp()))
	r.broadcastToRoomLocked(roomName, newUserList(r.membersLocked(roomName)))

	r.log.Info("User joined room",
		zap.String("session", s.id),
		zap.String("username", name),
		zap.String("room", roomName),
		zap.Int("members", len(rm.members)))
	return nil
}

// Send relays text to the session's room. Text that is blank after trimming
// is dropped without error.
func (r *Registry) Send(s *Session, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.state == StateDisconnected {
		return ErrSessionClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.state != StateJoined {
		return ErrNotJoined
	}

	r.broadcastToRoomLocked(s.room, newMessage(s.identity, text, r.timestamp()))
	return nil
}

// Leave removes the session from its room and releases its identity. It is
// a no-op for sessions that hold no room.
func (r *Registry) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(s)
}

// Disconnect performs the same cleanup as Leave and then retires the session
// for good. Calling it more than once is harmless.
func (r *Registry) Disconnect(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}
	r.leaveLocked(s)
	s.terminate()
	delete(r.sessions, s)

	r.log.Info("Session disconnected", zap.String("session", s.id), zap.Int("sessions", len(r.sessions)))
}

// ListRooms returns room names in creation order.
func (r *Registry) ListRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomNamesLocked()
}

// ListMembers returns the members of roomName in join order; unknown rooms
// have no members.
func (r *Registry) ListMembers(roomName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(roomName)
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the current directory as it would be persisted.
func (r *Registry) Snapshot() store.Directory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) leaveLocked(s *Session) bool {
	if s.state != StateJoined {
		return false
	}

	identity, roomName := s.release()
	delete(r.identities, identity)
	if rm, ok := r.rooms[roomName]; ok {
		rm.remove(identity)
	}
	r.syncLocked()

	r.broadcastToRoomLocked(roomName, newMessage(SystemUsername, identity+" has left the room.", r.timestamp()))
	r.broadcastToRoomLocked(roomName, newUserLeft(identity))
	r.broadcastToRoomLocked(roomName, newUserList(r.membersLocked(roomName)))

	r.log.Info("User left room",
		zap.String("session", s.id),
		zap.String("username", identity),
		zap.String("room", roomName))
	return true
}

func (r *Registry) addRoomLocked(name string) *room {
	rm := &room{name: name, members: []string{}}
	r.rooms[name] = rm
	r.order = append(r.order, name)
	return rm
}

func (r *Registry) roomNamesLocked() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *Registry) membersLocked(roomName string) []string {
	rm, ok := r.rooms[roomName]
	if !ok {
		return []string{}
	}
	members := make([]string, len(rm.members))
	copy(members, rm.members)
	return members
}

func (r *Registry) snapshotLocked() store.Directory {
	dir := make(store.Directory, 0, len(r.order))
	for _, name := range r.order {
		dir = append(dir, store.Room{Name: name, Members: r.membersLocked(name)})
	}
	return dir
}

func (r *Registry) syncLocked() {
	if r.persist == nil {
		return
	}
	r.persist.Submit(r.snapshotLocked())
}

func (r *Registry) timestamp() string {
	return r.now().Format(TimestampLayout)
}
