package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// External delivery channel
	SenderBaseURL string
	SenderTimeout time.Duration

	// Dispatch loop
	Workers     int
	Tick        time.Duration
	BatchSize   int
	StaleAfter  time.Duration
	MaxInFlight int

	// Rate limiting: maximum sends per second per job type
	RateLimit int

	// Retry backoff
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		SenderBaseURL: getEnv("SENDER_BASE_URL", "http://localhost:8025/send"),
		SenderTimeout: getDuration("SENDER_TIMEOUT", 10*time.Second),

		Workers:     getInt("DISPATCH_WORKERS", 2),
		Tick:        getDuration("DISPATCH_TICK", 5*time.Second),
		BatchSize:   getInt("DISPATCH_BATCH_SIZE", 50),
		StaleAfter:  getDuration("STALE_AFTER", 5*time.Minute),
		MaxInFlight: getInt("MAX_IN_FLIGHT", 10),

		RateLimit: getInt("RATE_LIMIT_PER_TYPE", 20),

		BackoffBase: getDuration("BACKOFF_BASE", 30*time.Second),
		BackoffCap:  getDuration("BACKOFF_CAP", time.Hour),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
