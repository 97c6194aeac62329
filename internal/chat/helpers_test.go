package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records every payload queued to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	refuse bool
}

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse {
		return false
	}
	c.frames = append(c.frames, payload)
	return true
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// take decodes and clears everything received so far.
func (c *fakeConn) take(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Envelope, 0, len(c.frames))
	for _, frame := range c.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	c.frames = nil
	return out
}

func kinds(envs []Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Type)
	}
	return out
}

type recordingPersister struct {
	mu        sync.Mutex
	snapshots []store.Directory
}

func (p *recordingPersister) Submit(dir store.Directory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, dir)
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func (p *recordingPersister) last() store.Directory {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1]
}

var fixedNow = time.Date(2024, 5, 1, 14, 30, 15, 0, time.Local)

func newTestRegistry(t *testing.T, rooms ...string) (*Registry, *recordingPersister) {
	t.Helper()
	seed := make(store.Directory, 0, len(rooms))
	for _, name := range rooms {
		seed = append(seed, store.Room{Name: name})
	}
	p := &recordingPersister{}
	reg := NewRegistry(seed,
		WithPersister(p),
		WithClock(func() time.Time { return fixedNow }),
	)
	return reg, p
}

func connect(t *testing.T, reg *Registry) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := reg.Connect(conn)
	conn.take(t)
	return s, conn
}

// assertConsistent checks that room member sets and session room fields
// describe the same relation.
func assertConsistent(t *testing.T, reg *Registry) {
	t.Helper()
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for name, rm := range reg.rooms {
		for _, identity := range rm.members {
			s, ok := reg.identities[identity]
			if assert.True(t, ok, "member %q of %q has no session", identity, name) {
				assert.Equal(t, name, s.room)
				assert.Equal(t, StateJoined, s.state)
			}
		}
	}

	for identity, s := range reg.identities {
		rm, ok := reg.rooms[s.room]
		if assert.True(t, ok, "session %q points at unknown room %q", identity, s.room) {
			assert.Contains(t, rm.members, identity)
		}
		assert.Equal(t, identity, s.identity)
	}

	for s := range reg.sessions {
		if s.state == StateJoined {
			assert.Same(t, s, reg.identities[s.identity])
		} else {
			assert.Empty(t, s.room)
			assert.Empty(t, s.identity)
		}
	}
}
