package auth

import "strings"

const (
	// AuthorizationHeader carries "Bearer <token>" on OPEN frames.
	AuthorizationHeader = "Authorization"
	// QueryStringHeader is the compatibility header older transports use to
	// tunnel the handshake query string into the first frame.
	QueryStringHeader = "queryString"
	// DefaultCredentialPrefix is the scheme prefix stripped from AuthorizationHeader.
	DefaultCredentialPrefix = "Bearer "

	queryTokenKey = "token"
)

// TokenResolver extracts a bearer credential from a frame's native headers.
// It has no side effects and is safe for concurrent use.
type TokenResolver struct {
	prefix string
}

// NewTokenResolver returns a resolver stripping the given credential prefix.
// An empty prefix selects DefaultCredentialPrefix.
func NewTokenResolver(prefix string) *TokenResolver {
	if prefix == "" {
		prefix = DefaultCredentialPrefix
	}
	return &TokenResolver{prefix: prefix}
}

// Prefix returns the credential prefix the resolver strips.
func (r *TokenResolver) Prefix() string {
	return r.prefix
}

// Resolve returns the credential carried by headers and whether one was found.
//
// The Authorization header wins when it starts with the configured prefix
// (case-sensitive). Otherwise the queryString header is parsed as
// '&'-separated key=value pairs and the first "token" pair is returned.
// Malformed pairs are skipped.
func (r *TokenResolver) Resolve(headers map[string]string) (string, bool) {
	if len(headers) == 0 {
		return "", false
	}

	if value, ok := headers[AuthorizationHeader]; ok && strings.HasPrefix(value, r.prefix) {
		return value[len(r.prefix):], true
	}

	query, ok := headers[QueryStringHeader]
	if !ok {
		return "", false
	}
	for _, pair := range strings.Split(query, "&") {
		kv := strings.Split(pair, "=")
		if len(kv) != 2 {
			continue
		}
		if kv[0] == queryTokenKey {
			return kv[1], true
		}
	}
	return "", false
}
