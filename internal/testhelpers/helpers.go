// Package testhelpers provides common utilities for testing the roomchat server.
//
// It contains helpers shared by package tests for creating test servers,
// making HTTP requests, and exchanging chat envelopes over real WebSocket
// connections.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking read in these helpers.
const DefaultTimeout = 2 * time.Second

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response Content-Type starts with the expected media type.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// WebSocketURL converts an httptest server URL into a ws:// URL for path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// ConnectWebSocket dials url with the given Origin header; an empty origin
// sends none.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url and consumes the initial room list, which it returns.
func MustConnect(t *testing.T, url string) (*websocket.Conn, []string) {
	t.Helper()

	conn, _, err := ConnectWebSocket(url, "")
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	first := ReadEnvelope(t, conn)
	if first.Type != chat.KindRoomListUpdate {
		t.Fatalf("Expected initial %s, got %s", chat.KindRoomListUpdate, first.Type)
	}
	return conn, first.Rooms
}

// SendEnvelope writes one JSON envelope.
func SendEnvelope(t *testing.T, conn *websocket.Conn, envelope any) {
	t.Helper()
	if err := conn.WriteJSON(envelope); err != nil {
		t.Fatalf("Failed to send envelope: %v", err)
	}
}

// ReadEnvelope reads the next envelope, failing the test after DefaultTimeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) chat.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}

	var env chat.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to decode envelope %q: %v", data, err)
	}
	return env
}

// ExpectKinds reads len(kinds) envelopes and checks their types in order.
func ExpectKinds(t *testing.T, conn *websocket.Conn, kinds ...string) []chat.Envelope {
	t.Helper()

	envs := make([]chat.Envelope, 0, len(kinds))
	for i, kind := range kinds {
		env := ReadEnvelope(t, conn)
		if env.Type != kind {
			t.Fatalf("Envelope %d: expected type %s, got %s (%+v)", i, kind, env.Type, env)
		}
		envs = append(envs, env)
	}
	return envs
}

// ExpectNoEnvelope verifies nothing arrives within d. A timed-out read
// leaves the connection unusable, so call it last.
func ExpectNoEnvelope(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no envelope, got %s", data)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
