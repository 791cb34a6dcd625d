package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// MemoryLimiter limita por key con un token bucket en proceso.
// Equivalente aproximado de RedisLimiter para despliegues de una réplica:
// Max requests por Window, con burst = Max.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   xrate.Limit
	burst   int
	window  time.Duration
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	lim      *xrate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter crea el limiter. Los buckets sin uso por 10 ventanas se purgan.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		limit:   xrate.Every(window / time.Duration(max)),
		burst:   max,
		window:  window,
		idleTTL: 10 * window,
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := m.now()

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: xrate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	m.gcLocked(now)
	m.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay, WindowTTL: m.window}, nil
	}
	remaining := int64(b.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, WindowTTL: m.window}, nil
}

func (m *MemoryLimiter) gcLocked(now time.Time) {
	if len(m.buckets) < 1024 {
		return
	}
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.idleTTL {
			delete(m.buckets, k)
		}
	}
}
