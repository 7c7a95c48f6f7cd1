// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// RateLimits configures the per-client-IP limits on abusable routes.
// A zero window or burst disables the limit for that route.
type RateLimits struct {
	RegisterWindow  time.Duration
	RegisterBurst   int
	PublicKeyWindow time.Duration
	PublicKeyBurst  int
}

// DefaultRateLimits allows 5 registrations per 10 minutes and 50
// public-key lookups per minute per client IP. Salt lookups are
// unlimited: salts are non-secret and fetched on every login attempt.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		RegisterWindow:  10 * time.Minute,
		RegisterBurst:   5,
		PublicKeyWindow: time.Minute,
		PublicKeyBurst:  50,
	}
}

// Metrics contains custom Prometheus metrics for Hushkey.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RateLimitedTotal   *prometheus.CounterVec
	SessionsSweptTotal prometheus.Counter
}

// NewMetrics creates and registers custom Hushkey metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hushkey_requests_total",
				Help: "Total number of requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hushkey_request_duration_seconds",
				Help:    "Request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hushkey_rate_limited_total",
				Help: "Total number of requests rejected by rate limiting, by route",
			},
			[]string{"route"},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hushkey_sessions_swept_total",
				Help: "Total number of expired sessions removed by the sweep",
			},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.RateLimitedTotal)
	reg.MustRegister(m.SessionsSweptTotal)

	return m
}

// Server serves the credential protocol plus metrics and health probes
// on a single listener.
type Server struct {
	addr       string
	handler    *Handler
	limits     RateLimits
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates the API server.
// addr: listen address in "host:port" format (e.g., ":8080").
func NewServer(addr string, handler *Handler, limits RateLimits, readinessChecker ReadinessChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// Own registry so tests can run several servers in one process.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(registry)

	return &Server{
		addr:     addr,
		handler:  handler,
		limits:   limits,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}
}

// Metrics returns the custom metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. It returns an error channel that will receive
// any errors from the HTTP server after it starts; the channel is
// closed when the server stops gracefully. Callers should monitor it
// to detect server failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// routes assembles the mux with rate limiting and metrics applied.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	registerLimiter := newKeyLimiter(s.limits.RegisterWindow, s.limits.RegisterBurst)
	publicKeyLimiter := newKeyLimiter(s.limits.PublicKeyWindow, s.limits.PublicKeyBurst)

	mux.HandleFunc("POST /register",
		s.instrument("register", rateLimited(registerLimiter, s.logger, s.handler.handleRegister)))
	mux.HandleFunc("POST /login",
		s.instrument("login", s.handler.handleLogin))
	mux.HandleFunc("GET /user/{username}/salt",
		s.instrument("salt", s.handler.handleSalt))
	mux.HandleFunc("GET /user/{username}/public-key",
		s.instrument("public_key", rateLimited(publicKeyLimiter, s.logger, s.handler.handlePublicKey)))

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)

	return mux
}

// instrument records request count, status, and latency for a route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if rec.status == http.StatusTooManyRequests {
			s.metrics.RateLimitedTotal.WithLabelValues(route).Inc()
		}
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	// CompareAndSwap so a concurrent Start() cannot slip between the
	// running check and the state change.
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready, 503 otherwise.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
