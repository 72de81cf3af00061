package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverBadger   = "badger"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	StorageDriver      string
	DatabaseURL        string
	BadgerPath         string
	CronSpecCycleCheck string
	CycleCheckTimeout  time.Duration
	TelegramToken      string // Optional, enables the admin bot
	AdminTelegramID    int64
	HTTPAddr           string // Optional, enables the HTTP API
	LogLevel           string
	Environment        string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.StorageDriver = strings.ToLower(os.Getenv("STORAGE_DRIVER"))
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = StorageDriverPostgres
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case StorageDriverBadger:
		cfg.BadgerPath = os.Getenv("BADGER_PATH")
		if cfg.BadgerPath == "" {
			cfg.BadgerPath = "./data/cycles"
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: expected %q or %q", cfg.StorageDriver, StorageDriverPostgres, StorageDriverBadger)
	}

	cfg.CronSpecCycleCheck = os.Getenv("CRON_SPEC_CYCLE_CHECK")
	if cfg.CronSpecCycleCheck == "" {
		cfg.CronSpecCycleCheck = "0 * * * *" // Default: top of every hour
	}
	if _, err = cron.ParseStandard(cfg.CronSpecCycleCheck); err != nil {
		return nil, fmt.Errorf("invalid CRON_SPEC_CYCLE_CHECK: %w", err)
	}

	cfg.CycleCheckTimeout = 5 * time.Minute
	if raw := os.Getenv("CYCLE_CHECK_TIMEOUT"); raw != "" {
		cfg.CycleCheckTimeout, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CYCLE_CHECK_TIMEOUT: %w", err)
		}
		if cfg.CycleCheckTimeout <= 0 {
			return nil, fmt.Errorf("invalid CYCLE_CHECK_TIMEOUT: must be positive")
		}
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}
