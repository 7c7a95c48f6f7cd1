// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hushkey/hushkey/internal/auth"
)

func newLiveServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()

	svc, err := auth.NewService(newMemUserRepo(), newMemSessionRepo(), nil)
	require.NoError(t, err)

	server := NewServer("127.0.0.1:0", NewHandler(svc, nil), DefaultRateLimits(), ready, nil)
	_, err = server.Start()
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	return server
}

func TestServer_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc, err := auth.NewService(newMemUserRepo(), newMemSessionRepo(), nil)
	require.NoError(t, err)

	server := NewServer("127.0.0.1:0", NewHandler(svc, nil), DefaultRateLimits(), nil, nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	// Second Start() must fail while running.
	_, err = server.Start()
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	// Graceful stop closes the error channel without an error.
	select {
	case serveErr, ok := <-errCh:
		if ok {
			t.Fatalf("unexpected server error: %v", serveErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error channel not closed after Stop")
	}

	// Stop on a stopped server is a no-op.
	require.NoError(t, server.Stop(ctx))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := newLiveServer(t, func() bool { return true })

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	bodyStr := string(body)
	assert.Contains(t, bodyStr, "# HELP")
	assert.Contains(t, bodyStr, "go_")
	assert.Contains(t, bodyStr, "process_")
}

func TestServer_HealthProbes(t *testing.T) {
	t.Run("liveness is always ok", func(t *testing.T) {
		server := newLiveServer(t, func() bool { return false })

		resp, err := http.Get("http://" + server.Addr() + "/healthz")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("readiness follows the checker", func(t *testing.T) {
		ready := false
		server := newLiveServer(t, func() bool { return ready })

		resp, err := http.Get("http://" + server.Addr() + "/readyz")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		ready = true
		resp, err = http.Get("http://" + server.Addr() + "/readyz")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "ok"))
	})
}

func TestServer_RequestMetricsRecorded(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := getJSON(t, env.server.URL+"/user/nobody/salt")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterRateLimit(t *testing.T) {
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	svc, err := auth.NewService(users, sessions, nil)
	require.NoError(t, err)

	limits := RateLimits{RegisterWindow: time.Hour, RegisterBurst: 2}
	server := NewServer(":0", NewHandler(svc, nil), limits, nil, nil)
	ts := httptest.NewServer(server.routes())
	defer ts.Close()

	// Bad-request bodies still consume tokens; the limit guards the
	// route, not successful registrations.
	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, ts.URL+"/register", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp, body := postJSON(t, ts.URL+"/register", map[string]string{})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.True(t, body.Error)
	assert.Equal(t, "Rate limit exceeded", body.Message)

	// Login is never rate limited.
	resp, _ = postJSON(t, ts.URL+"/login", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestKeyLimiter(t *testing.T) {
	t.Run("independent buckets per key", func(t *testing.T) {
		l := newKeyLimiter(time.Hour, 1)
		now := time.Now()

		assert.True(t, l.allow("10.0.0.1", now))
		assert.False(t, l.allow("10.0.0.1", now))
		assert.True(t, l.allow("10.0.0.2", now))
	})

	t.Run("tokens refill over the window", func(t *testing.T) {
		l := newKeyLimiter(time.Minute, 2)
		now := time.Now()

		assert.True(t, l.allow("k", now))
		assert.True(t, l.allow("k", now))
		assert.False(t, l.allow("k", now))
		assert.True(t, l.allow("k", now.Add(time.Minute)))
	})

	t.Run("idle entries are evicted", func(t *testing.T) {
		l := newKeyLimiter(time.Minute, 1)
		now := time.Now()

		l.allow("stale", now)
		// Sweep fires every 512 hits; the stale entry is past 2x the
		// window by then.
		later := now.Add(3 * time.Minute)
		for i := 0; i < 512; i++ {
			l.allow("busy", later)
		}

		l.mu.Lock()
		_, ok := l.byKey["stale"]
		l.mu.Unlock()
		assert.False(t, ok)
	})

	t.Run("nil limiter allows everything", func(t *testing.T) {
		var l *keyLimiter
		assert.True(t, l.allow("any", time.Now()))
		assert.Nil(t, newKeyLimiter(0, 5))
		assert.Nil(t, newKeyLimiter(time.Minute, 0))
	})
}
