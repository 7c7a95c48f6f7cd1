// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package api

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyLimiter applies a token bucket per string key and periodically
// evicts idle entries so the map cannot grow unboundedly.
type keyLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*limiterEntry
	hits  uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newKeyLimiter creates a per-key limiter allowing burst requests per
// window. Returns nil when the window or burst is non-positive; a nil
// limiter allows everything.
func newKeyLimiter(window time.Duration, burst int) *keyLimiter {
	if window <= 0 || burst <= 0 {
		return nil
	}
	return &keyLimiter{
		limit:   rate.Every(window / time.Duration(burst)),
		burst:   burst,
		idleTTL: 2 * window,
		byKey:   make(map[string]*limiterEntry),
	}
}

// allow reports whether one token can be consumed for the key at now.
func (l *keyLimiter) allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed
}

// rateLimited wraps next with a per-client-IP rate limit.
func rateLimited(limiter *keyLimiter, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(clientIP(r), time.Now()) {
			writeError(w, logger, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// clientIP extracts the client address without the port. Deployments
// behind a reverse proxy terminate client addressing there; this
// server trusts the direct peer only.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
