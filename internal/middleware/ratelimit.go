// Package middleware provides HTTP middleware for the campus Echo server.
// Middleware is applied globally (all routes) or per-route depending on the
// middleware type. See internal/app for registration.
package middleware

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// rateLimitEntry tracks request counts for a single IP within a time window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// rateLimiter is a fixed-window per-IP counter kept in memory. Each
// RateLimit call gets its own, so limits are per route group.
type rateLimiter struct {
	mu          sync.Mutex
	entries     map[string]*rateLimitEntry
	maxRequests int
	window      time.Duration
	now         func() time.Time
	lastSweep   time.Time
}

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window duration. Exceeding it returns 429.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return newRateLimiter(maxRequests, window, time.Now).middleware
}

func newRateLimiter(maxRequests int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		entries:     make(map[string]*rateLimitEntry),
		maxRequests: maxRequests,
		window:      window,
		now:         now,
		lastSweep:   now(),
	}
}

func (l *rateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !l.allow(c.RealIP()) {
			return apperror.NewTooManyRequests()
		}
		return next(c)
	}
}

// allow counts one request from ip and reports whether it is within the limit.
func (l *rateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	entry, exists := l.entries[ip]
	if !exists || now.Sub(entry.windowStart) > l.window {
		l.entries[ip] = &rateLimitEntry{count: 1, windowStart: now}
		return true
	}

	entry.count++
	return entry.count <= l.maxRequests
}

// sweepLocked drops stale entries at most once per window so the map
// doesn't grow with every IP ever seen. Caller holds l.mu.
func (l *rateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for ip, entry := range l.entries {
		if now.Sub(entry.windowStart) > l.window {
			delete(l.entries, ip)
		}
	}
	l.lastSweep = now
}
