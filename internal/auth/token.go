package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWT algorithm used by a TokenManager.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	defaultAccessTTL = 15 * time.Minute
	maxLeeway        = 2 * time.Minute
)

// MaxPrincipalLength bounds a principal in characters. Principals become
// message senders, so it matches chat.MaxSenderLength.
const MaxPrincipalLength = 50

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	SigningMethod SigningMethod
	Secret        []byte
	PrivateKey    ed25519.PrivateKey
	PublicKey     ed25519.PublicKey
	Issuer        string
	Audience      string
	Leeway        time.Duration
	AccessTTL     time.Duration
}

// Claims are the JWT claims carried by a chat credential. The principal is
// the registered subject.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies signed credentials. It is immutable after
// construction and safe for concurrent use.
type TokenManager struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenManager validates cfg and returns a TokenManager.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.AccessTTL < 0 {
		return nil, errors.New("invalid access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	switch cfg.SigningMethod {
	case "", MethodHS256:
		cfg.SigningMethod = MethodHS256
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 && len(cfg.PrivateKey) == ed25519.PrivateKeySize {
			cfg.PublicKey = cfg.PrivateKey.Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 requires a public key")
		}
		if len(cfg.PrivateKey) != 0 && len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid ed25519 private key")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return &TokenManager{config: cfg, now: time.Now}, nil
}

// Issue signs a credential for principal carrying roles.
func (m *TokenManager) Issue(principal string, roles []string) (string, error) {
	if strings.TrimSpace(principal) == "" {
		return "", errors.New("principal is required")
	}
	if utf8.RuneCountInString(principal) > MaxPrincipalLength {
		return "", fmt.Errorf("principal exceeds %d characters", MaxPrincipalLength)
	}

	now := m.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(m.method(), claims).SignedString(key)
}

// Parse verifies the signature and registered claims of token and returns
// its claims. Every failure wraps ErrInvalidCredential.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, jwt.ErrTokenInvalidClaims)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	if utf8.RuneCountInString(claims.Subject) > MaxPrincipalLength {
		return nil, fmt.Errorf("%w: subject exceeds %d characters", ErrInvalidCredential, MaxPrincipalLength)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing issued-at", ErrInvalidCredential)
	}
	return claims, nil
}

func (m *TokenManager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *TokenManager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		if len(m.config.PrivateKey) == 0 {
			return nil, errors.New("ed25519 signing requires a private key")
		}
		return m.config.PrivateKey, nil
	}
	return m.config.Secret, nil
}

func (m *TokenManager) verifyKey() interface{} {
	if m.config.SigningMethod == MethodEd25519 {
		return m.config.PublicKey
	}
	return m.config.Secret
}
