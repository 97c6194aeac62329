package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/Tyrowin/roomchat/internal/web"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	loadTimeout  = 5 * time.Second
	flushTimeout = 5 * time.Second
)

// App wires persistence, the chat registry, the hub and the HTTP surface.
type App struct {
	cfg        *Config
	log        *zap.Logger
	store      store.Store
	redis      *redis.Client
	syncer     *store.Syncer
	registry   *chat.Registry
	hub        *Hub
	handler    http.Handler
	httpServer *http.Server
	hubStarted atomic.Bool
}

// NewApp builds the application from cfg. The persisted room directory is
// loaded here; a record that cannot be read is logged and the server starts
// with no rooms.
func NewApp(cfg *Config, log *zap.Logger) (*App, error) {
	sanitized := sanitizeConfig(*cfg)
	cfg = &sanitized

	a := &App{cfg: cfg, log: log}
	a.openStore()

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	seed, err := a.store.Load(ctx)
	if err != nil {
		log.Error("Loading room directory failed; starting empty", zap.Error(err))
		seed = store.Directory{}
	}
	log.Info("Room directory loaded", zap.Int("rooms", len(seed)), zap.Strings("names", seed.Names()))

	a.syncer = store.NewSyncer(a.store, log.Named("store"), cfg.Store.Async)
	a.registry = chat.NewRegistry(seed,
		chat.WithLogger(log.Named("chat")),
		chat.WithPersister(a.syncer),
		chat.WithAutoCreate(cfg.AutoCreateRooms),
	)
	a.hub = NewHub(a.registry, cfg, log.Named("hub"))

	assets, err := a.assets()
	if err != nil {
		return nil, err
	}
	a.handler = SetupRoutes(NewHandlers(a.hub, cfg, assets, log.Named("http")))
	a.httpServer = CreateServer(cfg.Port, a.handler)

	return a, nil
}

func (a *App) openStore() {
	if a.cfg.Store.Backend == BackendRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Store.RedisAddr,
			Password: a.cfg.Store.RedisPassword,
			DB:       a.cfg.Store.RedisDB,
		})
		a.store = store.NewRedisStore(a.redis, a.cfg.Store.RedisKey)
		a.log.Info("Using Redis room store", zap.String("addr", a.cfg.Store.RedisAddr), zap.String("key", a.cfg.Store.RedisKey))
		return
	}

	fileStore := store.NewFileStore(a.cfg.Store.RoomsFile)
	a.store = fileStore
	a.log.Info("Using file room store", zap.String("path", fileStore.Path()))
}

func (a *App) assets() (fs.FS, error) {
	if a.cfg.StaticDir == "" {
		return web.Assets(), nil
	}
	info, err := os.Stat(a.cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", a.cfg.StaticDir)
	}
	return os.DirFS(a.cfg.StaticDir), nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Registry returns the chat registry.
func (a *App) Registry() *chat.Registry {
	return a.registry
}

// Hub returns the connection hub.
func (a *App) Hub() *Hub {
	return a.hub
}

// StartHub runs the hub loop in the background. It must be called before
// any connection is accepted.
func (a *App) StartHub() {
	if !a.hubStarted.CompareAndSwap(false, true) {
		return
	}
	go a.hub.Run()
	a.log.Info("Hub started and ready to manage WebSocket connections")
}

// ListenAndServe starts the hub and blocks serving HTTP until Shutdown.
func (a *App) ListenAndServe() error {
	a.StartHub()
	return StartServer(a.httpServer, a.log)
}

// Shutdown stops accepting connections, closes every client (which
// disconnects their sessions), and flushes the room directory.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := ShutdownServer(ctx, a.httpServer, a.log); err != nil {
		errs = append(errs, err)
	}

	if a.hubStarted.Load() {
		timeout := a.cfg.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := a.hub.Shutdown(timeout); err != nil {
			errs = append(errs, fmt.Errorf("hub: %w", err))
		}
	}

	// The flush has its own deadline, independent of what the hub left in ctx.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := a.syncer.Close(flushCtx); err != nil {
		errs = append(errs, fmt.Errorf("flush room directory: %w", err))
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	return errors.Join(errs...)
}
