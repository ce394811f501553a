// Package ratelimit implements a fixed-window request counter keyed by
// client identity. Counts reset entirely at the window boundary; short
// bursts of up to 2x max around a window edge are accepted behavior.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"cliproxy-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

const pruneThreshold = 4096

// Limiter gates one route group. A max of zero or less disables the check.
type Limiter struct {
	name   string
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	// Stubbed in tests to step through windows.
	now func() time.Time
}

type bucket struct {
	count       int
	windowStart time.Time
}

func New(name string, max int, window time.Duration) *Limiter {
	return &Limiter{
		name:    name,
		max:     max,
		window:  window,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (l *Limiter) Name() string          { return l.name }
func (l *Limiter) Max() int              { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }

// Allow reports whether the request keyed by key is admitted, incrementing
// the bucket count on admission. Increment-and-check happens under one lock
// so concurrent requests cannot lose updates.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		if len(l.buckets) >= pruneThreshold {
			l.prune(now)
		}
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}

// prune drops expired buckets. Called under l.mu.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// ClientKey derives the bucket key for a request: explicit API key first,
// then bearer token, then source IP. Must stay in sync with
// shared.APIKeyFromRequest.
func ClientKey(c echo.Context) string {
	if key := strings.TrimSpace(c.Request().Header.Get("x-api-key")); key != "" {
		return "key:" + key
	}
	if token := shared.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); token != "" {
		return "bearer:" + token
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
