// Package config collects the worker's tunables from the environment with
// defaults that match production. Durations are parsed with
// time.ParseDuration ("150s", "2m30s").
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every knob the worker reads at startup.
type Config struct {
	RedisAddr     string
	PostgresURL   string
	NATSURL       string
	ListenAddr    string
	MigrationsDir string

	// Matching.
	MaxWaitTime            time.Duration // total search budget per request
	InitialDelay           time.Duration // grace period before the first attempt
	MaxRetries             int
	CompatibilityThreshold float64
	CacheTTL               time.Duration // queue-store record TTL

	// State store.
	StateTTL     time.Duration
	StateMaxSize int

	// Resilience.
	RateLimitMax     int
	RateLimitWindow  time.Duration
	BreakerThreshold int
	BreakerRecovery  time.Duration
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		PostgresURL:   envString("POSTGRES_URL", "postgres://localhost:5432/matchworker?sslmode=disable"),
		NATSURL:       envString("NATS_URL", "nats://localhost:4222"),
		ListenAddr:    envString("LISTEN_ADDR", ":8080"),
		MigrationsDir: envString("MIGRATIONS_DIR", "migrations"),

		MaxWaitTime:            envDuration("MAX_WAIT_TIME", 150*time.Second),
		InitialDelay:           envDuration("INITIAL_DELAY", 1*time.Second),
		MaxRetries:             envInt("MAX_RETRIES", 10),
		CompatibilityThreshold: envFloat("COMPATIBILITY_THRESHOLD", 0.7),
		CacheTTL:               envDuration("CACHE_TTL", 300*time.Second),

		StateTTL:     envDuration("STATE_TTL", 300*time.Second),
		StateMaxSize: envInt("STATE_MAX_SIZE", 10_000),

		RateLimitMax:     envInt("RATE_LIMIT_MAX", 3),
		RateLimitWindow:  envDuration("RATE_LIMIT_WINDOW", 1*time.Second),
		BreakerThreshold: envInt("BREAKER_THRESHOLD", 3),
		BreakerRecovery:  envDuration("BREAKER_RECOVERY", 5*time.Second),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
