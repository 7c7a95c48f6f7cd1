// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushkey/hushkey/internal/api"
	"github.com/hushkey/hushkey/pkg/errutil"
)

type fakeMigrator struct {
	upCalled    bool
	upError     error
	closeCalled bool
}

func (m *fakeMigrator) Up() error {
	m.upCalled = true
	return m.upError
}

func (m *fakeMigrator) Close() error {
	m.closeCalled = true
	return nil
}

type fakeServer struct {
	startErr error
	errCh    chan error
	started  bool
	stopped  bool
	metrics  *api.Metrics
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		errCh:   make(chan error, 1),
		metrics: api.NewMetrics(prometheus.NewRegistry()),
	}
}

func (s *fakeServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = true
	return s.errCh, nil
}

func (s *fakeServer) Stop(_ context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeServer) Addr() string { return "127.0.0.1:0" }

func (s *fakeServer) Metrics() *api.Metrics { return s.metrics }

// testDeps wires fakes for everything serve touches outside the
// process.
func testDeps(t *testing.T, migrator *fakeMigrator, server *fakeServer) *ServeDeps {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &ServeDeps{
		DatabaseFactory: func(_ context.Context, _ string) (Database, error) {
			return pool, nil
		},
		MigratorFactory: func(_ string) (AutoMigrator, error) {
			return migrator, nil
		},
		ServerFactory: func(_ string, _ *api.Handler, _ api.RateLimits, _ api.ReadinessChecker, _ *slog.Logger) APIServer {
			return server
		},
	}
}

func newServeCommand(t *testing.T) *cobra.Command {
	t.Helper()
	configFile = ""
	return NewServeCmd()
}

func TestServe_StartAndShutdown(t *testing.T) {
	migrator := &fakeMigrator{}
	server := newFakeServer()
	deps := testDeps(t, migrator, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // shut down immediately after startup

	err := runServeWithDeps(ctx, newServeCommand(t), deps)
	require.NoError(t, err)

	assert.True(t, migrator.upCalled)
	assert.True(t, migrator.closeCalled)
	assert.True(t, server.started)
	assert.True(t, server.stopped)
}

func TestServe_AutoMigrateDisabled(t *testing.T) {
	migrator := &fakeMigrator{}
	server := newFakeServer()
	deps := testDeps(t, migrator, server)

	cmd := newServeCommand(t)
	require.NoError(t, cmd.Flags().Set("auto-migrate", "false"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runServeWithDeps(ctx, cmd, deps)
	require.NoError(t, err)

	assert.False(t, migrator.upCalled)
	assert.True(t, server.started)
}

func TestServe_MigrationFailureAborts(t *testing.T) {
	migrator := &fakeMigrator{upError: assert.AnError}
	server := newFakeServer()
	deps := testDeps(t, migrator, server)

	err := runServeWithDeps(context.Background(), newServeCommand(t), deps)
	require.Error(t, err)
	assert.Equal(t, "MIGRATION_FAILED", errutil.Code(err))
	assert.False(t, server.started)
	assert.True(t, migrator.closeCalled)
}

func TestServe_ServerStartFailure(t *testing.T) {
	server := newFakeServer()
	server.startErr = assert.AnError
	deps := testDeps(t, &fakeMigrator{}, server)

	err := runServeWithDeps(context.Background(), newServeCommand(t), deps)
	require.Error(t, err)
	assert.Equal(t, "SERVER_START_FAILED", errutil.Code(err))
}

func TestServe_ServerRuntimeFailure(t *testing.T) {
	server := newFakeServer()
	server.errCh <- assert.AnError
	deps := testDeps(t, &fakeMigrator{}, server)

	err := runServeWithDeps(context.Background(), newServeCommand(t), deps)
	require.Error(t, err)
	assert.Equal(t, "SERVER_FAILED", errutil.Code(err))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), "level %q", tt.input)
	}
}
