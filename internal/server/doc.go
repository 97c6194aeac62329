// Package server implements the HTTP and WebSocket surface of roomchat.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers. Chat semantics live
// in package chat; this package only moves frames between sockets and the
// chat registry, and wires persistence at startup.
package server
