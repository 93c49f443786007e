package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the engine.
type AppConfig struct {
	DatabaseURL      string
	Storage          string // "postgres" (default) or "memory" for local runs
	HTTPAddr         string
	TelegramToken    string // empty disables Telegram delivery (log notifier)
	PayoutRailURL    string // empty disables the HTTP rail (log rail)
	PayoutMaxRetries uint64
	CronSpecSweep    string
	LogLevel         string
	Environment      string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.Storage = strings.ToLower(os.Getenv("ENGINE_STORAGE"))
	if cfg.Storage == "" {
		cfg.Storage = "postgres"
	}
	if cfg.Storage != "postgres" && cfg.Storage != "memory" {
		return nil, fmt.Errorf("invalid ENGINE_STORAGE %q (want postgres or memory)", cfg.Storage)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.Storage == "postgres" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.PayoutRailURL = os.Getenv("PAYOUT_RAIL_URL")

	retriesStr := os.Getenv("PAYOUT_MAX_RETRIES")
	if retriesStr == "" {
		cfg.PayoutMaxRetries = 5
	} else {
		retries, err := strconv.ParseUint(retriesStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PAYOUT_MAX_RETRIES: %w", err)
		}
		cfg.PayoutMaxRetries = retries
	}

	cfg.CronSpecSweep = os.Getenv("CRON_SPEC_SWEEP")
	if cfg.CronSpecSweep == "" {
		cfg.CronSpecSweep = "*/5 * * * *" // Default: every 5 minutes
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	return cfg, nil
}
