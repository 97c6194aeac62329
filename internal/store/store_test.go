package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleDirectory() Directory {
	return Directory{
		{Name: "zeta", Members: []string{"bob", "alice"}},
		{Name: "general", Members: []string{}},
		{Name: "alpha \"quoted\"", Members: []string{"çağrı"}},
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "rooms.json"))

	dir, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dir)
	assert.NotNil(t, dir)
}

func TestFileStoreJSONMatchesRecordLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	fs := NewFileStore(path)

	require.NoError(t, fs.Save(context.Background(), Directory{
		{Name: "general", Members: []string{"A", "B"}},
		{Name: "empty"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"general\": [\n    \"A\",\n    \"B\"\n  ],\n  \"empty\": []\n}\n", string(data))
}

func TestFileStoreRoundTrip(t *testing.T) {
	for _, name := range []string{"rooms.json", "rooms.yaml", "rooms.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			fs := NewFileStore(path)
			ctx := context.Background()

			require.NoError(t, fs.Save(ctx, sampleDirectory()))
			first, err := os.ReadFile(path)
			require.NoError(t, err)

			loaded, err := fs.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sampleDirectory(), loaded)

			require.NoError(t, fs.Save(ctx, loaded))
			second, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dirPath := t.TempDir()
	fs := NewFileStore(filepath.Join(dirPath, "rooms.json"))

	for i := 0; i < 3; i++ {
		require.NoError(t, fs.Save(context.Background(), sampleDirectory()))
	}

	entries, err := os.ReadDir(dirPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rooms.json", entries[0].Name())
}

func TestFileStoreSaveFailsForMissingDirectory(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "missing", "rooms.json"))
	assert.Error(t, fs.Save(context.Background(), sampleDirectory()))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		input   string
		want    Directory
		wantErr bool
	}{
		{"blank", FormatJSON, "  \n", Directory{}, false},
		{"empty object", FormatJSON, "{}", Directory{}, false},
		{"null members", FormatJSON, `{"a": null}`, Directory{{Name: "a", Members: []string{}}}, false},
		{"duplicate key keeps first position", FormatJSON, `{"a":["x"],"b":[],"a":["y"]}`,
			Directory{{Name: "a", Members: []string{"y"}}, {Name: "b", Members: []string{}}}, false},
		{"array", FormatJSON, `["a"]`, nil, true},
		{"bad members", FormatJSON, `{"a": "x"}`, nil, true},
		{"truncated", FormatJSON, `{"a": [`, nil, true},
		{"yaml blank", FormatYAML, "", Directory{}, false},
		{"yaml order", FormatYAML, "b:\n  - x\na: []\n",
			Directory{{Name: "b", Members: []string{"x"}}, {Name: "a", Members: []string{}}}, false},
		{"yaml sequence", FormatYAML, "- a\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.format, []byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("rooms.json"))
	assert.Equal(t, FormatJSON, FormatForPath("rooms"))
	assert.Equal(t, FormatYAML, FormatForPath("data/Rooms.YAML"))
	assert.Equal(t, FormatYAML, FormatForPath("rooms.yml"))
}

func TestDirectoryNames(t *testing.T) {
	assert.Equal(t, []string{"zeta", "general", "alpha \"quoted\""}, sampleDirectory().Names())
	assert.Empty(t, Directory{}.Names())
}

// TestRedisStore requires Redis on localhost:6379 and is skipped otherwise.
func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	key := "roomchat:test:" + t.Name()
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	rs := NewRedisStore(client, key)

	dir, err := rs.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, dir)

	require.NoError(t, rs.Save(ctx, sampleDirectory()))
	dir, err = rs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleDirectory(), dir)
}

type memoryStore struct {
	mu    sync.Mutex
	saves []Directory
	fail  bool
	delay time.Duration
}

func (m *memoryStore) Load(context.Context) (Directory, error) {
	return Directory{}, nil
}

func (m *memoryStore) Save(_ context.Context, dir Directory) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.saves = append(m.saves, dir)
	return nil
}

func (m *memoryStore) snapshot() []Directory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Directory(nil), m.saves...)
}

func TestSyncerSynchronous(t *testing.T) {
	ms := &memoryStore{}
	s := NewSyncer(ms, zap.NewNop(), false)

	s.Submit(Directory{{Name: "a"}})
	s.Submit(Directory{{Name: "b"}})

	assert.Equal(t, []Directory{{{Name: "a"}}, {{Name: "b"}}}, ms.snapshot())
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
}

func TestSyncerAsyncFlushesLatestOnClose(t *testing.T) {
	ms := &memoryStore{delay: 5 * time.Millisecond}
	s := NewSyncer(ms, zap.NewNop(), true)

	for _, name := range []string{"a", "b", "c", "d"} {
		s.Submit(Directory{{Name: name}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	saves := ms.snapshot()
	require.NotEmpty(t, saves)
	assert.LessOrEqual(t, len(saves), 4)
	assert.Equal(t, Directory{{Name: "d"}}, saves[len(saves)-1])

	// Submissions after Close are written inline.
	s.Submit(Directory{{Name: "e"}})
	saves = ms.snapshot()
	assert.Equal(t, Directory{{Name: "e"}}, saves[len(saves)-1])
}

func TestSyncerSurvivesSaveFailures(t *testing.T) {
	ms := &memoryStore{fail: true}
	s := NewSyncer(ms, zap.NewNop(), false)

	assert.NotPanics(t, func() { s.Submit(sampleDirectory()) })
	assert.Empty(t, ms.snapshot())
}

// gatedStore blocks every Save until release is closed and records the
// highest number of Saves in flight at once.
type gatedStore struct {
	memoryStore
	release  chan struct{}
	started  chan struct{}
	inFlight int
	maxIn    int
}

func (g *gatedStore) Save(ctx context.Context, dir Directory) error {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxIn {
		g.maxIn = g.inFlight
	}
	g.mu.Unlock()

	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release

	g.mu.Lock()
	g.inFlight--
	g.saves = append(g.saves, dir)
	g.mu.Unlock()
	return nil
}

func TestSyncerSubmitAfterTimedOutCloseWaitsForWriter(t *testing.T) {
	gs := &gatedStore{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewSyncer(gs, zap.NewNop(), true)

	s.Submit(Directory{{Name: "old"}})
	<-gs.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Close(ctx), context.Canceled)

	submitted := make(chan struct{})
	go func() {
		s.Submit(Directory{{Name: "new"}})
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit after Close saved while the writer was still busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(gs.release)
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("Submit after Close never completed")
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()
	assert.Equal(t, []Directory{{{Name: "old"}}, {{Name: "new"}}}, gs.saves)
	assert.Equal(t, 1, gs.maxIn)
}
