package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatgate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("chatgate", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	dev := flags.Bool("dev", false, "development logging (console encoder, debug level)")
	port := flags.String("port", "", "listen address, e.g. :8080")
	origins := flags.StringSlice("allowed-origins", nil, "origins allowed to open a WebSocket")
	anonymous := flags.Bool("allow-anonymous", false, "admit sessions without a credential")
	redisAddr := flags.String("redis-addr", "", "Redis address for identities and cross-node relay")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := server.NewConfig()
	if *configPath != "" {
		if err := server.LoadConfigFile(cfg, *configPath); err != nil {
			return err
		}
	}
	server.ApplyEnv(cfg)
	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = *origins
	}
	if flags.Changed("allow-anonymous") {
		cfg.Gate.AllowAnonymousAccess = *anonymous
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = *redisAddr
	}

	logger, err := newLogger(*dev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := server.Build(*cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting chatgate",
		zap.String("addr", cfg.Port),
		zap.Bool("anonymous", cfg.Gate.AllowAnonymousAccess),
		zap.Bool("redis", cfg.Redis.Addr != ""))
	return app.Run(ctx)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
