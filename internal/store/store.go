package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// DefaultPath is the well-known location of the room record, relative to the
// server's working directory.
const DefaultPath = "rooms.json"

// Store loads and saves the room directory. A missing record is not an error:
// Load returns an empty Directory.
type Store interface {
	Load(ctx context.Context) (Directory, error)
	Save(ctx context.Context, dir Directory) error
}

// FileStore keeps the directory in a single file. Saves replace the file
// atomically so readers never observe a partial record.
type FileStore struct {
	path   string
	format Format
}

// NewFileStore returns a FileStore for path; the encoding follows the file
// extension (see FormatForPath).
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path, format: FormatForPath(path)}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record, returning an empty directory when the file is absent.
func (s *FileStore) Load(_ context.Context) (Directory, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Directory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return Decode(s.format, data)
}

// Save writes the whole directory through a temp file and a rename.
func (s *FileStore) Save(_ context.Context, dir Directory) error {
	data, err := Encode(s.format, dir)
	if err != nil {
		return fmt.Errorf("encode room directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// DefaultRedisKey is the key RedisStore uses when none is configured.
const DefaultRedisKey = "roomchat:rooms"

// RedisStore keeps the JSON-encoded directory under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load fetches the record; a missing key yields an empty directory.
func (s *RedisStore) Load(ctx context.Context) (Directory, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Directory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return Decode(FormatJSON, data)
}

// Save overwrites the record.
func (s *RedisStore) Save(ctx context.Context, dir Directory) error {
	data, err := Encode(FormatJSON, dir)
	if err != nil {
		return fmt.Errorf("encode room directory: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
