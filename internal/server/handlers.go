// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the static browser client.
package server

import (
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers serves the chat endpoint and the static client on one listener.
type Handlers struct {
	hub      *Hub
	upgrader websocket.Upgrader
	static   http.Handler
	log      *zap.Logger
}

// NewHandlers builds the HTTP handlers. assets is served at the root for
// every request that is not a WebSocket handshake.
func NewHandlers(hub *Hub, cfg *Config, assets fs.FS, log *zap.Logger) *Handlers {
	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		static: http.FileServer(http.FS(assets)),
		log:    log,
	}
}

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, and hands a new Client to the hub, which starts its pumps.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)
	if err := h.hub.Register(client); err != nil {
		h.log.Warn("Rejecting connection", zap.String("remote", r.RemoteAddr), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// RootHandler upgrades WebSocket handshakes arriving at any path and serves
// the static client for everything else.
func (h *Handlers) RootHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.WebSocketHandler(w, r)
		return
	}
	h.static.ServeHTTP(w, r)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (h *Handlers) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomchat server is running! sessions=%d", h.hub.Registry().SessionCount())
}
