package ratebucket

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InProcessLimiter enforces min-gap deferral with one golang.org/x/time/rate
// limiter per bucket, each configured as rate.Every(minGap) with burst 1 so
// at most one dispatch is ever admitted per gap window. It is worker-local:
// a fleet of workers sharing no state will each enforce the gap
// independently, making the overall fleet best-effort rather than exact (see
// RedisLimiter for the store-backed alternative).
type InProcessLimiter struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewInProcessLimiter builds a single-instance limiter from cfg.
func NewInProcessLimiter(cfg Config) *InProcessLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &InProcessLimiter{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (l *InProcessLimiter) limiterFor(bucket string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[bucket]; ok {
		return lim
	}
	gap := l.cfg.MinGap(bucket)
	lim := rate.NewLimiter(rate.Every(gap), 1)
	l.limiters[bucket] = lim
	return lim
}

// Allow reports whether bucket may be dispatched now, without consuming the
// bucket's slot: it only reads the limiter's available tokens and derives the
// wait until a full token is available from the bucket's gap.
func (l *InProcessLimiter) Allow(_ context.Context, bucket string) (bool, time.Duration, error) {
	lim := l.limiterFor(bucket)
	tokens := lim.TokensAt(time.Now())
	if tokens >= 1 {
		return true, 0, nil
	}
	delay := time.Duration((1 - tokens) * float64(l.cfg.MinGap(bucket)))
	return false, delay, nil
}

// MarkDispatched records bucket's dispatch clock as now, unconditionally
// consuming the slot. Called only when a provider call is actually issued,
// regardless of its eventual outcome.
func (l *InProcessLimiter) MarkDispatched(_ context.Context, bucket string) error {
	lim := l.limiterFor(bucket)
	lim.ReserveN(time.Now(), 1)
	return nil
}
