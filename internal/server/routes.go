// Package server wires HTTP handlers into a ServeMux for the roomchat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// The WebSocket endpoint answers on /ws and, for handshakes, on / as well so
// clients that dial the bare host work too.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.RootHandler)
	mux.HandleFunc("/ws", h.WebSocketHandler)
	mux.HandleFunc("/health", h.HealthHandler)
	return mux
}
