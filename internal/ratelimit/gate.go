package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate is a non-blocking admission check keyed by source. Discovery passes
// consult it before touching a platform or a category so a burst of runs
// cannot hammer the same upstream.
type Gate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
	now      func() time.Time
}

// NewGate admits burst calls per key, refilled one every interval. A
// non-positive interval admits everything.
func NewGate(every time.Duration, burst int) *Gate {
	if burst <= 0 {
		burst = 1
	}
	return &Gate{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now. It never blocks.
func (g *Gate) Allow(_ context.Context, key string) bool {
	if g == nil || g.every <= 0 {
		return true
	}
	g.mu.Lock()
	limiter, ok := g.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(g.every), g.burst)
		g.limiters[key] = limiter
	}
	now := g.now()
	g.mu.Unlock()
	return limiter.AllowN(now, 1)
}
