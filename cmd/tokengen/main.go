// Command tokengen mints a bearer credential for a chat principal, signed
// with the same settings the server verifies with. With --provision it also
// writes the principal's identity record to Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the server's YAML configuration file")
	principal := flags.StringP("principal", "p", "", "principal to issue the credential for")
	roles := flags.StringSlice("roles", nil, "roles carried by the credential")
	secret := flags.String("secret", "", "HMAC signing secret (defaults to the configured one)")
	ttl := flags.Duration("ttl", 0, "credential lifetime (defaults to the configured one)")
	provision := flags.Bool("provision", false, "write the identity record to the configured Redis")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *principal == "" {
		return errors.New("--principal is required")
	}

	cfg := server.NewConfig()
	if *configPath != "" {
		if err := server.LoadConfigFile(cfg, *configPath); err != nil {
			return err
		}
	}
	server.ApplyEnv(cfg)
	if *secret != "" {
		cfg.JWT.Secret = *secret
	}
	if *ttl > 0 {
		cfg.JWT.AccessTTL = *ttl
	}
	if cfg.JWT.Secret == "" {
		return errors.New("no signing secret: pass --secret or set JWT_SECRET")
	}

	if *provision {
		if err := provisionIdentity(cfg.Redis, *principal, *roles); err != nil {
			return err
		}
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		SigningMethod: auth.MethodHS256,
		Secret:        []byte(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTTL,
	})
	if err != nil {
		return err
	}
	token, err := tokens.Issue(*principal, *roles)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func provisionIdentity(cfg server.RedisConfig, principal string, roles []string) error {
	if cfg.Addr == "" {
		return errors.New("--provision needs a Redis address (REDIS_ADDR or redis.addr)")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := auth.NewRedisIdentityStore(rdb, cfg.IdentityPrefix)
	return store.Put(ctx, auth.Identity{
		Principal: principal,
		Roles:     roles,
		UpdatedAt: time.Now().Add(-time.Second),
	})
}
