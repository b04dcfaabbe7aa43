package server

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// TestOriginPolicy tests origin normalization and matching rules.
func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"http://Example.com", " ", "not-a-url", "https://chat.example:8443"}, zap.NewNop())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "http://example.com", true},
		{"case insensitive", "HTTP://EXAMPLE.COM", true},
		{"path ignored", "http://example.com/some/path", true},
		{"explicit port", "https://chat.example:8443", true},
		{"scheme differs", "https://example.com", false},
		{"port differs", "http://example.com:9090", false},
		{"missing origin", "", false},
		{"malformed origin", "://missing-scheme", false},
		{"unknown host", "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := policy.check(req); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// TestOriginPolicyWildcard tests that "*" admits any well-formed origin but
// still requires one to be present.
func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zap.NewNop())

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://anything.example")
	if !policy.check(req) {
		t.Error("Expected wildcard to allow any origin")
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	if policy.check(req) {
		t.Error("Expected wildcard to still reject a missing origin")
	}
}
