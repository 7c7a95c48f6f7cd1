// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hushkey/hushkey/internal/api"
	"github.com/hushkey/hushkey/internal/auth"
	"github.com/hushkey/hushkey/internal/auth/postgres"
	"github.com/hushkey/hushkey/internal/config"
	"github.com/hushkey/hushkey/internal/logging"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential service",
		Long: `Start the HTTP server handling registration, login, and
credential discovery, plus metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("server.addr", "", "listen address (overrides config)")
	cmd.Flags().String("log.level", "", "log level: debug, info, warn, error (overrides config)")
	cmd.Flags().String("log.format", "", "log format: json or text (overrides config)")
	cmd.Flags().Bool("auto-migrate", true, "apply pending database migrations on startup")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
	}

	logger := logging.Setup("hushkey", version, cfg.Log.Format, parseLogLevel(cfg.Log.Level), os.Stderr)
	slog.SetDefault(logger)

	if autoMigrate, _ := cmd.Flags().GetBool("auto-migrate"); autoMigrate {
		if err := runAutoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	svc, err := auth.NewService(
		postgres.NewUserRepository(db),
		postgres.NewSessionRepository(db),
		logger,
	)
	if err != nil {
		return oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}

	ready := func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return db.Ping(pingCtx) == nil
	}

	server := deps.ServerFactory(cfg.Server.Addr, api.NewHandler(svc, logger), api.RateLimits{
		RegisterWindow:  cfg.RateLimit.RegisterWindow,
		RegisterBurst:   cfg.RateLimit.RegisterBurst,
		PublicKeyWindow: cfg.RateLimit.PublicKeyWindow,
		PublicKeyBurst:  cfg.RateLimit.PublicKeyBurst,
	}, ready, logger)

	errCh, err := server.Start()
	if err != nil {
		return oops.Code("SERVER_START_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sweepExpiredSessions(ctx, svc, cfg.Session.SweepInterval, server.Metrics().SessionsSweptTotal, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Hushkey started on", server.Addr())
	logger.Info("service ready", "addr", server.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case serveErr := <-errCh:
		if serveErr != nil {
			return oops.Code("SERVER_FAILED").Wrap(serveErr)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}

	logger.Info("shutdown complete")
	return nil
}

// runAutoMigrate applies pending migrations before the pool opens.
func runAutoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("migrations up to date")
	return nil
}

// sweepExpiredSessions periodically removes expired session rows until
// the context is cancelled.
func sweepExpiredSessions(ctx context.Context, svc *auth.Service, interval time.Duration, swept prometheus.Counter, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpiredSessions(ctx)
			if err != nil {
				logger.Error("session sweep failed", "error", err)
				continue
			}
			swept.Add(float64(n))
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
