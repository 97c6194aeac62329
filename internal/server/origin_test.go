package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin header", []string{"http://localhost:3000"}, "", "chat.example", true},
		{"listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", "127.0.0.1:3000", true},
		{"listed origin case insensitive", []string{"HTTP://LocalHost:3000"}, "http://localhost:3000", "127.0.0.1:3000", true},
		{"same host", nil, "https://chat.example", "chat.example", true},
		{"wildcard", []string{"*"}, "https://anything.example", "chat.example", true},
		{"unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", "chat.example", false},
		{"different port", []string{"http://localhost:3000"}, "http://localhost:4000", "chat.example", false},
		{"garbage origin", []string{"http://localhost:3000"}, "::::", "chat.example", false},
		{"invalid config entry ignored", []string{"not-a-url"}, "not-a-url", "chat.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, zap.NewNop())
			req := httptest.NewRequest("GET", "http://"+tt.host+"/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.check(req))
		})
	}
}
