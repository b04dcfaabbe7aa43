package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/gate"
	"github.com/Tyrowin/chatgate/internal/metrics"
	"github.com/Tyrowin/chatgate/internal/relay"
	"github.com/Tyrowin/chatgate/internal/router"
)

const shutdownTimeout = 10 * time.Second

// App is a fully wired chat gate process: HTTP server, hub, router and the
// optional Redis-backed identity store and relay.
type App struct {
	Server  *Server
	HTTP    *http.Server
	Router  *router.Router
	Metrics *metrics.Collector
	Tokens  *auth.TokenManager

	identities auth.IdentityStore
	redis      redis.UniversalClient
	relay      *relay.Redis
	logger     *zap.Logger
}

// Build wires an App from cfg. With cfg.Redis.Addr set, identities are read
// from Redis through a cache and published messages are relayed to other
// nodes; otherwise identities come from cfg.Users.
func Build(cfg Config, logger *zap.Logger) (*App, error) {
	cfg = sanitizeConfig(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		SigningMethod: auth.MethodHS256,
		Secret:        []byte(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		AccessTTL:     cfg.JWT.AccessTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	app := &App{
		Metrics: metrics.New(),
		Tokens:  tokens,
		logger:  logger,
	}
	app.Router = router.New(logger, app.Metrics)

	var publisher gate.Publisher = app.Router
	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.identities = auth.NewCachedIdentityStore(
			auth.NewRedisIdentityStore(app.redis, cfg.Redis.IdentityPrefix),
			cfg.IdentityCache.Size,
			cfg.IdentityCache.TTL,
		)
		app.relay = relay.NewRedis(app.redis, cfg.Redis.Channel, app.Router, logger)
		publisher = app.relay
	} else {
		app.identities = memoryIdentities(cfg.Users)
	}

	app.Server, err = New(cfg, Deps{
		Authenticator: auth.NewAuthenticator(tokens, app.identities, logger),
		Processor:     chat.NewProcessor(),
		Publisher:     publisher,
		Registry:      app.Router,
		Metrics:       app.Metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, multierr.Append(err, app.closeRedis())
	}
	app.HTTP = CreateServer(cfg.Port, app.Server.Routes())
	return app, nil
}

func memoryIdentities(users []UserConfig) *auth.MemoryIdentityStore {
	store := auth.NewMemoryIdentityStore()
	for _, u := range users {
		store.Put(auth.Identity{Principal: u.Principal, Roles: u.Roles})
	}
	return store
}

// Identities returns the identity store the authenticator consults.
func (a *App) Identities() auth.IdentityStore {
	return a.identities
}

// Run serves until ctx is cancelled or a component fails, then shuts
// everything down. The returned error aggregates the failure that stopped
// the app and any shutdown errors.
func (a *App) Run(ctx context.Context) error {
	if a.relay != nil {
		if err := a.relay.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("start relay: %w", err), a.closeRedis())
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Server.Hub().Run()
		return nil
	})
	g.Go(func() error {
		return StartServer(a.HTTP, a.logger)
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := ShutdownServer(ctx, a.HTTP)
	err = multierr.Append(err, a.Server.Hub().Shutdown(shutdownTimeout))
	if a.relay != nil {
		err = multierr.Append(err, a.relay.Close())
	}
	return multierr.Append(err, a.closeRedis())
}

func (a *App) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
