// Package server coordinates client registration, pump supervision, and
// connection cleanup for the roomchat WebSocket system via the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"go.uber.org/zap"
)

// ErrHubStopped is returned when a client is offered to a hub that has shut down.
var ErrHubStopped = errors.New("hub stopped")

// Hub owns the set of live WebSocket clients. It binds each new client to a
// chat session, runs its pumps, and turns every connection end into a
// session disconnect. Chat state itself lives in the Registry.
type Hub struct {
	registry       *chat.Registry
	dispatcher     *chat.Dispatcher
	log            *zap.Logger
	sendBufferSize int
	maxMessageSize int64

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub serving registry. Queue size and frame limit come from cfg.
func NewHub(registry *chat.Registry, cfg *Config, log *zap.Logger) *Hub {
	sanitized := sanitizeConfig(*cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:       registry,
		dispatcher:     chat.NewDispatcher(registry, log),
		log:            log,
		sendBufferSize: sanitized.SendBufferSize,
		maxMessageSize: sanitized.MaxMessageSize,
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Registry returns the chat registry the hub feeds.
func (h *Hub) Registry() *chat.Registry {
	return h.registry
}

// Register hands a freshly upgraded client to the hub, which starts its pumps.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// Unregister removes client and disconnects its session. It never blocks on
// a hub that has stopped running.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Connect queues the initial room list before the pumps start.
	client.session = h.registry.Connect(client)
	client.log.Info("Client registered",
		zap.String("session", client.Session().ID()),
		zap.Int("clients", clientCount))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}

	client.closeSend()
	if client.session != nil {
		h.registry.Disconnect(client.session)
	}
	client.log.Info("Client unregistered", zap.Int("clients", clientCount))
}

// shutdownClients closes every active connection; each read pump then
// unregisters its client.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.log.Debug("Error closing client connection", zap.Error(err))
		}
	}

	h.log.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
