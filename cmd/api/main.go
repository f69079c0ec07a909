package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/note_wallet/internal/config"
	"github.com/congo-pay/note_wallet/internal/devnet"
	"github.com/congo-pay/note_wallet/internal/infra"
	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
	"github.com/congo-pay/note_wallet/internal/metrics"
	"github.com/congo-pay/note_wallet/internal/routes"
	"github.com/congo-pay/note_wallet/internal/rpc"
	"github.com/congo-pay/note_wallet/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency and distributed locks disabled")
	}

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Metrics: metrics.New(), Logger: logger}
	if cfg.NodeURL == "" {
		dev := devnet.New()
		deps.Node, deps.Devnet = dev, dev
		logger.Warn("NODE_URL not set, running embedded devnet", "faucet", cfg.FaucetID.String())
	} else {
		endpoint, err := ledger.ParseEndpoint(cfg.NodeURL, cfg.NodeTimeout)
		if err != nil {
			logger.Error("parse node endpoint", "error", err)
			os.Exit(1)
		}
		deps.Node = rpc.New(endpoint, rpc.Options{RequestsPerSecond: cfg.NodeRPS, Logger: logger})
	}

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
