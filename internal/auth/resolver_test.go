package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTokenResolverPrecedence verifies header precedence and query-string parsing.
func TestTokenResolverPrecedence(t *testing.T) {
	r := NewTokenResolver("")

	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantOK  bool
	}{
		{
			name:    "bearer header",
			headers: map[string]string{"Authorization": "Bearer abc123"},
			want:    "abc123",
			wantOK:  true,
		},
		{
			name:    "query string token",
			headers: map[string]string{"queryString": "foo=1&token=xyz&bar=2"},
			want:    "xyz",
			wantOK:  true,
		},
		{
			name:    "neither header",
			headers: map[string]string{"Accept-Version": "1.2"},
			wantOK:  false,
		},
		{
			name:    "nil headers",
			headers: nil,
			wantOK:  false,
		},
		{
			name: "header wins over query string",
			headers: map[string]string{
				"Authorization": "Bearer from-header",
				"queryString":   "token=from-query",
			},
			want:   "from-header",
			wantOK: true,
		},
		{
			name: "non-bearer header falls back to query string",
			headers: map[string]string{
				"Authorization": "Basic dXNlcjpwYXNz",
				"queryString":   "token=from-query",
			},
			want:   "from-query",
			wantOK: true,
		},
		{
			name:    "prefix is case sensitive",
			headers: map[string]string{"Authorization": "bearer abc"},
			wantOK:  false,
		},
		{
			name:    "header key is case sensitive",
			headers: map[string]string{"authorization": "Bearer abc"},
			wantOK:  false,
		},
		{
			name:    "malformed pairs are skipped",
			headers: map[string]string{"queryString": "novalue&token=a=b&=x&token=good"},
			want:    "good",
			wantOK:  true,
		},
		{
			name:    "first token pair wins",
			headers: map[string]string{"queryString": "token=first&token=second"},
			want:    "first",
			wantOK:  true,
		},
		{
			name:    "query without token",
			headers: map[string]string{"queryString": "foo=1&bar=2"},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.headers)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestTokenResolverCustomPrefix verifies a configured credential prefix.
func TestTokenResolverCustomPrefix(t *testing.T) {
	r := NewTokenResolver("Token ")
	assert.Equal(t, "Token ", r.Prefix())

	got, ok := r.Resolve(map[string]string{"Authorization": "Token abc"})
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	_, ok = r.Resolve(map[string]string{"Authorization": "Bearer abc"})
	assert.False(t, ok)
}
