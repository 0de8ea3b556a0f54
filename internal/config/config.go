package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds every runtime setting of the auction engine
type Config struct {
	Port                 string
	StorageDriver        string
	DatabaseURL          string
	LockTimeout          time.Duration
	SchedulerMinInterval time.Duration
	SchedulerMaxInterval time.Duration
	SweepRetries         int
	MinPriceUnit         int64
	CORSAllowedOrigins   []string
	LogLevel             string
	SeedDemoData         bool
	ShutdownTimeout      time.Duration
	EventBuffer          int
}

// Default returns the settings used when no environment variable overrides them
func Default() Config {
	return Config{
		Port:                 "8080",
		StorageDriver:        DriverMemory,
		LockTimeout:          5 * time.Second,
		SchedulerMinInterval: time.Second,
		SchedulerMaxInterval: 30 * time.Second,
		SweepRetries:         3,
		MinPriceUnit:         1000,
		CORSAllowedOrigins:   []string{"*"},
		LogLevel:             "info",
		ShutdownTimeout:      10 * time.Second,
		EventBuffer:          16,
	}
}

// Load reads .env (when present) and the process environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid positive duration %q", key, v))
			return
		}
		*dst = d
	}
	integer := func(key string, dst *int64, lowest int64) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < lowest {
			errs = append(errs, fmt.Errorf("%s: expected an integer >= %d, got %q", key, lowest, v))
			return
		}
		*dst = n
	}

	str("PORT", &cfg.Port)
	str("STORAGE_DRIVER", &cfg.StorageDriver)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	dur("LOCK_TIMEOUT", &cfg.LockTimeout)
	dur("SCHEDULER_MIN_INTERVAL", &cfg.SchedulerMinInterval)
	dur("SCHEDULER_MAX_INTERVAL", &cfg.SchedulerMaxInterval)
	dur("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	retries := int64(cfg.SweepRetries)
	integer("SWEEP_RETRIES", &retries, 0)
	cfg.SweepRetries = int(retries)

	integer("MIN_PRICE_UNIT", &cfg.MinPriceUnit, 1)

	buffer := int64(cfg.EventBuffer)
	integer("EVENT_BUFFER", &buffer, 1)
	cfg.EventBuffer = int(buffer)

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.CORSAllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	if v, ok := lookup("SEED_DEMO_DATA"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SEED_DEMO_DATA: invalid boolean %q", v))
		}
		cfg.SeedDemoData = b
	}

	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	switch cfg.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER: unknown driver %q", cfg.StorageDriver))
	}
	if cfg.SchedulerMaxInterval < cfg.SchedulerMinInterval {
		errs = append(errs, errors.New("SCHEDULER_MAX_INTERVAL must not be below SCHEDULER_MIN_INTERVAL"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
