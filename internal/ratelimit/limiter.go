// Package ratelimit throttles API clients with per-client token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter implements per-client token bucket rate limiting.
// Each client may burst up to rpm requests and refills at rpm per minute.
type Limiter struct {
	mu      sync.Mutex
	rpm     int
	buckets map[string]*tokenBucket
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// New creates a limiter allowing rpm requests per minute per client.
// rpm <= 0 disables limiting.
func New(rpm int) *Limiter {
	return &Limiter{
		rpm:     rpm,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool { return l != nil && l.rpm > 0 }

func (l *Limiter) refillRate() float64 { return float64(l.rpm) / 60.0 }

// Allow consumes a token for client and reports whether the request may
// proceed.
func (l *Limiter) Allow(client string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[client]
	if !ok {
		b = &tokenBucket{tokens: float64(l.rpm), lastRefill: now}
		l.buckets[client] = b
	}

	b.tokens = min(b.tokens+now.Sub(b.lastRefill).Seconds()*l.refillRate(), float64(l.rpm))
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns the number of seconds until client gets its next token.
func (l *Limiter) RetryAfter(client string) int {
	if !l.Enabled() {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok || b.tokens >= 1 {
		return 0
	}
	return int((1.0-b.tokens)/l.refillRate()) + 1
}

// Cleanup drops buckets of clients not seen within maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	n := 0
	for client, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, client)
			n++
		}
	}
	return n
}
