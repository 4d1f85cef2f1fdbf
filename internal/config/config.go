package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read from the environment; a .env file in the working directory
// is loaded first if present.
type Config struct {
	HTTPAddr         string
	DatabaseURL      string // empty means the in-memory store
	KafkaBrokers     []string
	KafkaTopic       string
	LockTimeout      time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	LogLevel         string
}

// Load reads configuration from the environment with defaults suitable for
// local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "transfer_completed"),
		LockTimeout:      3 * time.Second,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   100 * time.Millisecond,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if v := os.Getenv("LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LockTimeout = d
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.RetryMaxAttempts = n
	}
	if v := os.Getenv("RETRY_BASE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, err
		}
		cfg.RetryBaseDelay = d
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
