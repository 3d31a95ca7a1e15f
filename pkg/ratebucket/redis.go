package ratebucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// peekScript checks a bucket's last-dispatch timestamp without updating it,
// so a fleet of workers shares one gap clock per bucket instead of each
// enforcing it worker-locally, and a check that is never followed by a
// dispatch (policy block, deferred elsewhere) never consumes the slot.
//
// KEYS[1] = bucket key
// ARGV[1] = min gap, seconds (float)
// ARGV[2] = now, unix seconds (float)
//
// Returns {allowed (0/1), retry_after_seconds}.
var peekScript = redis.NewScript(`
local key = KEYS[1]
local min_gap = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local last = tonumber(redis.call("GET", key))
if not last then
    return {1, 0}
end

local elapsed = now - last
if elapsed >= min_gap then
    return {1, 0}
end

return {0, min_gap - elapsed}
`)

// markDispatchedScript records that a bucket was just dispatched against,
// unconditionally resetting its clock to now so the next peek enforces the
// gap from this moment.
//
// KEYS[1] = bucket key
// ARGV[1] = min gap, seconds (float), used only for the key TTL
// ARGV[2] = now, unix seconds (float)
var markDispatchedScript = redis.NewScript(`
local key = KEYS[1]
local min_gap = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
redis.call("SET", key, now, "EX", math.ceil(min_gap) + 1)
return 1
`)

// RedisLimiter enforces min-gap deferral with one shared clock per bucket in
// Redis, so every worker of a multi-worker deployment sees the same
// dispatch clock, as opposed to InProcessLimiter's worker-local state. The
// check (Allow) and the mark (MarkDispatched) are separate script calls, so
// two workers that check the same bucket before either marks it can both be
// allowed.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLimiter builds a store-backed limiter against an existing client.
func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &RedisLimiter{client: client, cfg: cfg}
}

func (l *RedisLimiter) Allow(ctx context.Context, bucket string) (bool, time.Duration, error) {
	key := fmt.Sprintf("ratebucket:%s", bucket)
	minGap := l.cfg.MinGap(bucket).Seconds()
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := peekScript.Run(ctx, l.client, []string{key}, minGap, now).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratebucket: redis script failed: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, 0, fmt.Errorf("ratebucket: unexpected script response %T", res)
	}

	allowed, _ := results[0].(int64)
	if allowed == 1 {
		return true, 0, nil
	}

	// Redis truncates Lua floats to integers across the RESP boundary, so the
	// remaining gap arrives as whole seconds; round up so callers never retry
	// a moment too early.
	retrySeconds, _ := results[1].(int64)
	retryIn := time.Duration(retrySeconds+1) * time.Second
	return false, retryIn, nil
}

// MarkDispatched records bucket's dispatch clock as now. Called only when a
// provider call is actually issued, regardless of its eventual outcome.
func (l *RedisLimiter) MarkDispatched(ctx context.Context, bucket string) error {
	key := fmt.Sprintf("ratebucket:%s", bucket)
	minGap := l.cfg.MinGap(bucket).Seconds()
	now := float64(time.Now().UnixMicro()) / 1e6

	if err := markDispatchedScript.Run(ctx, l.client, []string{key}, minGap, now).Err(); err != nil {
		return fmt.Errorf("ratebucket: redis script failed: %w", err)
	}
	return nil
}
