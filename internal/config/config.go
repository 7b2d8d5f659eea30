package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NumWorkers  int

	// Retry schedule: delay = min(RetryBaseDelay * 2^(attempt-1), RetryMaxDelay).
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Consecutive failures before a subscription is auto-disabled.
	DisableThreshold int

	// How often the sweeper promotes due retries back into the pipeline.
	SweepInterval time.Duration
}

// Load reads configuration from the environment. A local .env file is loaded
// first if present; real environment variables win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	numWorkers := getEnvInt("NUM_WORKERS", 50)
	baseDelay := getEnvDuration("RETRY_BASE_DELAY", time.Second)
	maxDelay := getEnvDuration("RETRY_MAX_DELAY", 5*time.Minute)
	disableThreshold := getEnvInt("DISABLE_THRESHOLD", 10)
	sweepInterval := getEnvDuration("SWEEP_INTERVAL", time.Second)

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if disableThreshold < 1 {
		return nil, fmt.Errorf("DISABLE_THRESHOLD must be >= 1")
	}
	if baseDelay <= 0 || maxDelay < baseDelay {
		return nil, fmt.Errorf("invalid retry delays: base=%s max=%s", baseDelay, maxDelay)
	}

	return &Config{
		Port:             port,
		DatabaseURL:      dbURL,
		RedisURL:         redisURL,
		NumWorkers:       numWorkers,
		RetryBaseDelay:   baseDelay,
		RetryMaxDelay:    maxDelay,
		DisableThreshold: disableThreshold,
		SweepInterval:    sweepInterval,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
