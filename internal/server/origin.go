package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originPolicy decides which browser origins may open a WebSocket. It is
// built once from configuration and read-only afterwards.
type originPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
	logger   *zap.Logger
}

func newOriginPolicy(origins []string, logger *zap.Logger) *originPolicy {
	normalized, allowAll := normalizeOrigins(origins, logger)
	allowed := make(map[string]struct{}, len(normalized))
	for _, origin := range normalized {
		allowed[origin] = struct{}{}
	}
	return &originPolicy{allowed: allowed, allowAll: allowAll, logger: logger}
}

func normalizeOrigins(origins []string, logger *zap.Logger) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) allows(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	_, exists := p.allowed[normalizedOrigin]
	return exists
}

// check is the upgrader's CheckOrigin hook.
func (p *originPolicy) check(r *http.Request) bool {
	if p.allows(r) {
		return true
	}

	p.logger.Warn("blocked websocket connection from disallowed origin",
		zap.String("origin", r.Header.Get("Origin")),
		zap.String("remote", r.RemoteAddr))
	return false
}
