package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchJoinAndMessage(t *testing.T) {
	reg, _ := newTestRegistry(t, "general")
	d := NewDispatcher(reg, nil)
	a, connA := connect(t, reg)
	b, connB := connect(t, reg)

	require.NoError(t, d.Dispatch(a, []byte(`{"type":"join","username":"A","room":"general"}`)))
	require.NoError(t, d.Dispatch(b, []byte(`{"type":"join","username":"B","room":"general"}`)))
	connA.take(t)
	connB.take(t)

	// The claimed username and room are ignored in favour of the session's.
	require.NoError(t, d.Dispatch(a, []byte(`{"type":"message","username":"B","room":"other","message":"hi"}`)))

	for _, conn := range []*fakeConn{connA, connB} {
		envs := conn.take(t)
		require.Len(t, envs, 1)
		assert.Equal(t, KindMessage, envs[0].Type)
		assert.Equal(t, "A", envs[0].Username)
		assert.Equal(t, "hi", envs[0].Message)
		assert.NotEmpty(t, envs[0].Timestamp)
	}
}

func TestDispatchReportsValidationErrorsToSenderOnly(t *testing.T) {
	reg, _ := newTestRegistry(t, "general")
	d := NewDispatcher(reg, nil)
	a, connA := connect(t, reg)
	b, connB := connect(t, reg)
	require.NoError(t, d.Dispatch(a, []byte(`{"type":"join","username":"alice","room":"general"}`)))
	connA.take(t)

	tests := []struct {
		name    string
		frame   string
		wantErr error
		wantMsg string
	}{
		{"duplicate name", `{"type":"join","username":"alice","room":"general"}`, ErrNameTaken, "Username already taken."},
		{"unknown room", `{"type":"join","username":"bob","room":"nope"}`, ErrRoomNotFound, "Room does not exist."},
		{"duplicate room", `{"type":"createRoom","room":"general"}`, ErrRoomExists, "Room already exists."},
		{"blank room", `{"type":"createRoom","room":""}`, ErrInvalidRoom, "Room name is required."},
		{"blank name", `{"type":"join","username":"","room":"general"}`, ErrInvalidName, "Username is required."},
		{"message before join", `{"type":"message","message":"hello"}`, ErrNotJoined, "Join a room before sending messages."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Dispatch(b, []byte(tt.frame))
			require.ErrorIs(t, err, tt.wantErr)

			envs := connB.take(t)
			require.Len(t, envs, 1)
			assert.Equal(t, KindError, envs[0].Type)
			assert.Equal(t, tt.wantMsg, envs[0].Message)
			assert.Empty(t, connA.take(t))
		})
	}

	assert.Equal(t, StateUnauthenticated, b.State())
	assertConsistent(t, reg)
}

func TestDispatchAlreadyJoined(t *testing.T) {
	reg, _ := newTestRegistry(t, "general", "random")
	d := NewDispatcher(reg, nil)
	s, conn := connect(t, reg)
	require.NoError(t, d.Dispatch(s, []byte(`{"type":"join","username":"alice","room":"general"}`)))
	conn.take(t)

	err := d.Dispatch(s, []byte(`{"type":"join","username":"alice","room":"random"}`))
	require.ErrorIs(t, err, ErrAlreadyJoined)
	envs := conn.take(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "Already in a room. Leave it first.", envs[0].Message)
	assert.Equal(t, "general", s.Room())
}

func TestDispatchIgnoresUnknownKinds(t *testing.T) {
	reg, _ := newTestRegistry(t, "general")
	d := NewDispatcher(reg, nil)
	s, conn := connect(t, reg)

	assert.NoError(t, d.Dispatch(s, []byte(`{"type":"typing"}`)))
	assert.NoError(t, d.Dispatch(s, []byte(`{}`)))
	assert.Empty(t, conn.take(t))
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	reg, _ := newTestRegistry(t, "general")
	d := NewDispatcher(reg, nil)
	s, conn := connect(t, reg)

	for _, frame := range []string{`not json`, `{"type":`, `["join"]`, `{"type":"join","username":42}`} {
		err := d.Dispatch(s, []byte(frame))
		assert.ErrorIs(t, err, ErrMalformed, frame)
	}
	assert.Empty(t, conn.take(t))

	// The session keeps working afterwards.
	require.NoError(t, d.Dispatch(s, []byte(`{"type":"join","username":"alice","room":"general"}`)))
	assert.Equal(t, StateJoined, s.State())
}

func TestDispatchCreateRoomAndLeave(t *testing.T) {
	reg, _ := newTestRegistry(t)
	d := NewDispatcher(reg, nil)
	s, conn := connect(t, reg)

	require.NoError(t, d.Dispatch(s, []byte(`{"type":"createRoom","room":"general"}`)))
	assert.Equal(t, []string{KindRoomCreated, KindRoomListUpdate}, kinds(conn.take(t)))

	require.NoError(t, d.Dispatch(s, []byte(`{"type":"join","username":"alice","room":"general"}`)))
	require.NoError(t, d.Dispatch(s, []byte(`{"type":"leave","username":"someone-else","room":"general"}`)))
	require.NoError(t, d.Dispatch(s, []byte(`{"type":"leave"}`)))

	assert.Equal(t, StateLeft, s.State())
	assert.Empty(t, reg.ListMembers("general"))
}

func TestDispatchAfterDisconnect(t *testing.T) {
	reg, _ := newTestRegistry(t, "general")
	d := NewDispatcher(reg, nil)
	s, conn := connect(t, reg)
	reg.Disconnect(s)

	err := d.Dispatch(s, []byte(`{"type":"join","username":"alice","room":"general"}`))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, conn.take(t))
	assert.Empty(t, reg.ListMembers("general"))
}
