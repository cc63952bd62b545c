package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the runtime configuration of the service.
type AppConfig struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// APIKey authenticates device submissions on the /iot endpoints.
	APIKey string

	// RateLimitWindow is the minimum interval between submissions per logger.
	RateLimitWindow time.Duration

	// AggregationTime is the daily batch trigger as "HH:MM" in UTC.
	AggregationTime string

	// RedisAddr enables the Redis-backed rate limiter when set; empty keeps
	// the in-memory one.
	RedisAddr     string
	RedisPassword string

	// MigrationsDir, when set, is applied on startup.
	MigrationsDir string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set in environment")
	}

	cfg.APIKey = os.Getenv("API_KEY")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY not set in environment")
	}

	windowStr := getenvDefault("RATE_LIMIT_WINDOW", "60s")
	window, err := time.ParseDuration(windowStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}
	cfg.RateLimitWindow = window

	cfg.AggregationTime = getenvDefault("AGGREGATION_TIME", "23:59")
	if err := validateTimeOfDay(cfg.AggregationTime); err != nil {
		return nil, fmt.Errorf("invalid AGGREGATION_TIME: %w", err)
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.MigrationsDir = os.Getenv("MIGRATIONS_DIR")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// validateTimeOfDay checks an "HH:MM" wall-clock trigger.
func validateTimeOfDay(s string) error {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return fmt.Errorf("%q is not HH:MM", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%q is out of range", s)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
