package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onesoftdev/idp/internal/config"
	"github.com/onesoftdev/idp/internal/db/migrate"
	"github.com/onesoftdev/idp/internal/infra"
	"github.com/onesoftdev/idp/internal/logging"
	"github.com/onesoftdev/idp/internal/server"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.ForService(logging.New(cfg.LogLevel, cfg.LogFormat), cfg.AppName, cfg.AppEnv)

	if cfg.AutoMigrate && cfg.DatabaseURL != "" {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	ctx := context.Background()

	backends, err := infra.Connect(ctx, infra.Options{
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		AppName:     cfg.AppName,
	})
	if err != nil {
		logger.Error("connect backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close(logger)
	if backends.DB == nil || backends.Cache == nil {
		logger.Warn("running with in-memory stores", "env", cfg.AppEnv,
			"postgres", backends.DB != nil, "redis", backends.Cache != nil)
	}

	srv, err := server.New(cfg, backends, logger)
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
