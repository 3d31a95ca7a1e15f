package worker

import "time"

// Config holds the outbox worker's tunables: poll cadence, batch size, and
// the retry ceiling per record.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// DefaultConfig is a sane baseline for a single-instance deployment.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    25,
		MaxAttempts:  5,
	}
}
