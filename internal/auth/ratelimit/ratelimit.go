// Package ratelimit throttles API callers per key with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter *rate.Limiter
	limit   int
	seen    time.Time
}

// Limiter grants each key limit requests per window, refilled
// continuously, with bursts of up to limit.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter with the given refill window.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket. A non-positive limit is
// unlimited.
func (l *Limiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		every := rate.Every(l.window / time.Duration(limit))
		b = &bucket{limiter: rate.NewLimiter(every, limit), limit: limit}
		l.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for two windows; they would be full anyway.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	dropped := 0
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
			dropped++
		}
	}
	return dropped
}

// Run sweeps every window until ctx ends.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
