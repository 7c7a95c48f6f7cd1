// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/hushkey/hushkey/internal/api"
	"github.com/hushkey/hushkey/internal/auth/postgres"
	"github.com/hushkey/hushkey/internal/store"
)

// Database is the subset of pgxpool.Pool the serve command needs: the
// query surface the repositories use plus lifecycle.
type Database interface {
	postgres.PgxPool
	Ping(ctx context.Context) error
	Close()
}

// APIServer is the server surface serve manages.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *api.Metrics
}

// AutoMigrator applies pending migrations at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the connection pool.
	// Default: store.NewPool
	DatabaseFactory func(ctx context.Context, url string) (Database, error)

	// MigratorFactory creates the startup migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// ServerFactory creates the API server.
	// Default: api.NewServer
	ServerFactory func(addr string, handler *api.Handler, limits api.RateLimits, ready api.ReadinessChecker, logger *slog.Logger) APIServer
}

func (d *ServeDeps) applyDefaults() {
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, url string) (Database, error) {
			return store.NewPool(ctx, url)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.ServerFactory == nil {
		d.ServerFactory = func(addr string, handler *api.Handler, limits api.RateLimits, ready api.ReadinessChecker, logger *slog.Logger) APIServer {
			return api.NewServer(addr, handler, limits, ready, logger)
		}
	}
}
