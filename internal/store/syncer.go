package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const saveTimeout = 5 * time.Second

// Syncer funnels directory snapshots into a Store. In synchronous mode each
// Submit saves before returning. In async mode snapshots are coalesced so only
// the newest pending one is written, by a single background goroutine. Either
// way writes never overlap. Failed saves are logged and dropped.
type Syncer struct {
	store Store
	log   *zap.Logger
	async bool

	mu      sync.Mutex
	closed  bool
	pending chan Directory
	done    chan struct{}
}

// NewSyncer starts a Syncer over store.
func NewSyncer(store Store, log *zap.Logger, async bool) *Syncer {
	s := &Syncer{
		store: store,
		log:   log,
		async: async,
		done:  make(chan struct{}),
	}
	if async {
		s.pending = make(chan Directory, 1)
		go s.run()
	} else {
		close(s.done)
	}
	return s
}

// Submit records a new snapshot. After Close, snapshots are saved inline
// once the background writer has drained, so they never race its writes.
func (s *Syncer) Submit(dir Directory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.async || s.closed {
		<-s.done
		s.save(dir)
		return
	}

	// Replace any snapshot the writer has not picked up yet.
	select {
	case <-s.pending:
	default:
	}
	s.pending <- dir
}

// Close flushes the pending snapshot and stops the writer. When ctx ends
// first the writer keeps draining in the background.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.async {
		close(s.pending)
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) run() {
	defer close(s.done)
	for dir := range s.pending {
		s.save(dir)
	}
}

func (s *Syncer) save(dir Directory) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.store.Save(ctx, dir); err != nil {
		s.log.Error("Persisting room directory failed", zap.Int("rooms", len(dir)), zap.Error(err))
		return
	}
	s.log.Debug("Room directory persisted", zap.Int("rooms", len(dir)))
}
