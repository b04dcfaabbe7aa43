package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/gate"
	"github.com/Tyrowin/chatgate/internal/metrics"
)

// Deps are the collaborators a Server routes frames through.
type Deps struct {
	Authenticator gate.Authenticator
	Processor     gate.Processor
	Publisher     gate.Publisher
	Registry      gate.Registry
	Policy        gate.Policy
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

// Server ties the WebSocket transport to the gate. It owns the hub and acts
// as the gate's downstream for frames the gate does not interpret.
type Server struct {
	cfg      Config
	hub      *Hub
	gate     *gate.Gate
	metrics  *metrics.Collector
	logger   *zap.Logger
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// New builds a Server from cfg and deps. The hub is created but not started.
func New(cfg Config, deps Deps) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		hub:     NewHub(logger, deps.Metrics),
		metrics: deps.Metrics,
		logger:  logger.Named("server"),
		origins: newOriginPolicy(cfg.AllowedOrigins, logger.Named("origin")),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}

	g, err := gate.New(gate.Config{
		Options: gate.Options{
			AllowAnonymousAccess:   cfg.Gate.AllowAnonymousAccess,
			CredentialHeaderPrefix: cfg.Gate.CredentialHeaderPrefix,
		},
		Authenticator: deps.Authenticator,
		Processor:     deps.Processor,
		Publisher:     deps.Publisher,
		Registry:      deps.Registry,
		Policy:        deps.Policy,
		Downstream:    s,
		Logger:        logger,
		Metrics:       deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build gate: %w", err)
	}
	s.gate = g
	return s, nil
}

// Hub returns the server's connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Gate returns the server's gate.
func (s *Server) Gate() *gate.Gate {
	return s.gate
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// CreateServer creates and configures the HTTP server with security settings.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits. A server
// closed through Shutdown is not an error.
func StartServer(srv *http.Server, logger *zap.Logger) error {
	logger.Info("server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}

// ShutdownServer stops accepting HTTP requests and waits for in-flight ones.
func ShutdownServer(ctx context.Context, srv *http.Server) error {
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
