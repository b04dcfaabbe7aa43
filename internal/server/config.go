// Package server provides configuration helpers that define runtime defaults,
// validation, and the file/environment sources for the chat gate service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// GateConfig holds the messaging gate's access policy.
type GateConfig struct {
	AllowAnonymousAccess   bool   `yaml:"allow_anonymous_access"`
	CredentialHeaderPrefix string `yaml:"credential_header_prefix"`
}

// JWTConfig configures bearer credential verification.
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Leeway    time.Duration `yaml:"leeway"`
	AccessTTL time.Duration `yaml:"access_ttl"`
}

// RedisConfig enables the Redis identity store and cross-node relay when
// Addr is set.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	Channel        string `yaml:"channel"`
	IdentityPrefix string `yaml:"identity_prefix"`
}

// IdentityCacheConfig sizes the identity lookup cache.
type IdentityCacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// UserConfig seeds the in-memory identity store.
type UserConfig struct {
	Principal string   `yaml:"principal"`
	Roles     []string `yaml:"roles"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string              `yaml:"port"`
	AllowedOrigins []string            `yaml:"allowed_origins"`
	MaxMessageSize int64               `yaml:"max_message_size"`
	RateLimit      RateLimitConfig     `yaml:"rate_limit"`
	Gate           GateConfig          `yaml:"gate"`
	JWT            JWTConfig           `yaml:"jwt"`
	Redis          RedisConfig         `yaml:"redis"`
	IdentityCache  IdentityCacheConfig `yaml:"identity_cache"`
	Users          []UserConfig        `yaml:"users"`
}

const (
	defaultPort              = ":8080"
	defaultMaxMessageSize    = 4096
	defaultRateBurst         = 5
	defaultRefillInterval    = time.Second
	defaultCredentialPrefix  = "Bearer "
	defaultIdentityCacheSize = 1024
	defaultIdentityCacheTTL  = 30 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: defaultRefillInterval,
		},
		Gate: GateConfig{
			CredentialHeaderPrefix: defaultCredentialPrefix,
		},
		JWT: JWTConfig{
			Issuer:    "chatgate",
			AccessTTL: 15 * time.Minute,
		},
		IdentityCache: IdentityCacheConfig{
			Size: defaultIdentityCacheSize,
			TTL:  defaultIdentityCacheTTL,
		},
	}
}

// sanitizeConfig replaces invalid values with defaults and copies slices so
// the result does not alias the caller's configuration.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.Gate.CredentialHeaderPrefix == "" {
		cfg.Gate.CredentialHeaderPrefix = defaultCredentialPrefix
	}

	if cfg.IdentityCache.Size <= 0 {
		cfg.IdentityCache.Size = defaultIdentityCacheSize
	}

	if cfg.IdentityCache.TTL <= 0 {
		cfg.IdentityCache.TTL = defaultIdentityCacheTTL
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	users := make([]UserConfig, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		if strings.TrimSpace(u.Principal) == "" {
			continue
		}
		users = append(users, UserConfig{Principal: u.Principal, Roles: append([]string(nil), u.Roles...)})
	}
	cfg.Users = users

	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfigFile overlays the YAML document at path onto cfg. Keys missing
// from the file keep their current values.
func LoadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	ApplyEnv(&cfg)
	return &cfg
}

// ApplyEnv overrides cfg with any recognized environment variables. Invalid
// numeric values leave the current setting untouched.
func ApplyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if anon := os.Getenv("ALLOW_ANONYMOUS_ACCESS"); anon != "" {
		cfg.Gate.AllowAnonymousAccess = parseBool(anon, cfg.Gate.AllowAnonymousAccess)
	}

	if prefix, ok := os.LookupEnv("CREDENTIAL_HEADER_PREFIX"); ok && prefix != "" {
		cfg.Gate.CredentialHeaderPrefix = prefix
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		cfg.JWT.Issuer = issuer
	}

	if audience := os.Getenv("JWT_AUDIENCE"); audience != "" {
		cfg.JWT.Audience = audience
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if channel := os.Getenv("REDIS_CHANNEL"); channel != "" {
		cfg.Redis.Channel = channel
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}
