// Package ratebucket enforces per-bucket minimum-gap deferral: two
// dispatches against the same named bucket (e.g. "slack.minute") must be
// separated by at least min_gap(bucket), or the second is deferred rather
// than executed.
package ratebucket

import (
	"context"
	"time"
)

// DefaultMinGap is the fallback minimum gap for a bucket name that has no
// explicit configuration entry.
const DefaultMinGap = time.Second

// Config maps bucket names to their minimum gap between dispatches.
type Config map[string]time.Duration

// MinGap returns the configured gap for bucket, or DefaultMinGap if unset.
func (c Config) MinGap(bucket string) time.Duration {
	if gap, ok := c[bucket]; ok {
		return gap
	}
	return DefaultMinGap
}

// DefaultConfig provides the baseline per-bucket gaps.
func DefaultConfig() Config {
	return Config{
		"slack.minute": 5 * time.Second,
		"tickets.api":  2 * time.Second,
		"email.daily":  60 * time.Second,
	}
}

// Limiter decides whether a dispatch against a named bucket may proceed now.
// Allow is a non-consuming check: calling it never advances the bucket's
// clock, so a record whose dispatch is skipped for any other reason (policy
// block, claim lost) leaves the bucket untouched for the next pending
// record. MarkDispatched is the only call that consumes the bucket's slot,
// and is made once per provider call, at the point a record is actually
// sent to its provider (again on each retry) — not when the check merely
// passes.
type Limiter interface {
	Allow(ctx context.Context, bucket string) (allowed bool, retryIn time.Duration, err error)
	MarkDispatched(ctx context.Context, bucket string) error
}
