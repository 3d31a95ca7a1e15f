// Package config loads the action control plane's environment-variable
// configuration: guardrail defaults, the durable store DSN, and worker
// tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the control plane's full runtime configuration.
type Config struct {
	AppName      string
	TenantID     string
	DefaultModel string

	QuietHoursStart  int // -1 means unconfigured
	QuietHoursEnd    int // -1 means unconfigured
	TrustThreshold   float64
	ScopeEnforced    bool
	EvidenceRequired bool

	ComposioAPIKey       string
	ComposioClientID     string
	ComposioClientSecret string

	DatabaseURL string
	StoreSchema string

	RedisAddr string

	OutboxPollInterval       time.Duration
	OutboxBatchSize          int
	OutboxMaxAttempts        int
	OutboxPauseOnBareFailure bool

	LogLevel string
}

// Load loads configuration from environment variables, applying the
// defaults a demo/single-tenant deployment needs to run.
func Load() (*Config, error) {
	cfg := &Config{
		AppName:      getEnv("APP_NAME", "actionplane"),
		TenantID:     getEnv("TENANT_ID", "demo_user"),
		DefaultModel: getEnv("DEFAULT_MODEL", "gemini-2.5-flash"),

		ScopeEnforced:    getEnvBool("ENFORCE_SCOPE_VALIDATION", true),
		EvidenceRequired: getEnvBool("REQUIRE_EVIDENCE", true),

		ComposioAPIKey:       firstNonEmpty(os.Getenv("COMPOSIO_API_KEY"), os.Getenv("AI_EMPLOYEE_COMPOSIO_API_KEY")),
		ComposioClientID:     firstNonEmpty(os.Getenv("COMPOSIO_CLIENT_ID"), os.Getenv("AI_EMPLOYEE_COMPOSIO_CLIENT_ID")),
		ComposioClientSecret: firstNonEmpty(os.Getenv("COMPOSIO_CLIENT_SECRET"), os.Getenv("AI_EMPLOYEE_COMPOSIO_CLIENT_SECRET")),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://actionplane@localhost:5432/actionplane?sslmode=disable"),
		StoreSchema: getEnv("STORE_SCHEMA", "public"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		OutboxPauseOnBareFailure: getEnvBool("OUTBOX_PAUSE_ON_BARE_FAILURE", false),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	start, err := getEnvOptionalInt("QUIET_HOURS_START_HOUR")
	if err != nil {
		return nil, err
	}
	end, err := getEnvOptionalInt("QUIET_HOURS_END_HOUR")
	if err != nil {
		return nil, err
	}
	cfg.QuietHoursStart = start
	cfg.QuietHoursEnd = end

	threshold, err := getEnvFloat("TRUST_THRESHOLD", 0.8)
	if err != nil {
		return nil, err
	}
	cfg.TrustThreshold = threshold

	pollSeconds, err := getEnvInt("OUTBOX_POLL_INTERVAL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.OutboxPollInterval = time.Duration(pollSeconds) * time.Second

	batchSize, err := getEnvInt("OUTBOX_BATCH_SIZE", 25)
	if err != nil {
		return nil, err
	}
	cfg.OutboxBatchSize = batchSize

	maxAttempts, err := getEnvInt("OUTBOX_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	cfg.OutboxMaxAttempts = maxAttempts

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", key, v, err)
	}
	return n, nil
}

// getEnvOptionalInt returns -1 when the variable is unset, matching the
// guardrail pipeline's "unconfigured" sentinel for quiet-hours bounds.
func getEnvOptionalInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a float, got %q: %w", key, v, err)
	}
	return f, nil
}
