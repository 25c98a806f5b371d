package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"json-store/internal/logs"
	"json-store/internal/retry"
	"json-store/internal/ttl"
)

// Backend names the Record Repository implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBolt   Backend = "bolt"
)

// Environment variables read by FromEnv.
const (
	EnvBackend       = "JSON_STORE_BACKEND"
	EnvDSN           = "JSON_STORE_DSN"
	EnvHTTPAddr      = "JSON_STORE_HTTP_ADDR"
	EnvSweepInterval = "JSON_STORE_SWEEP_INTERVAL"
	EnvSweepOnInit   = "JSON_STORE_SWEEP_RUN_ON_INIT"
	EnvLogLevel      = "JSON_STORE_LOG_LEVEL"
	EnvLogBuffer     = "JSON_STORE_LOG_BUFFER"
	EnvOpenRetries   = "JSON_STORE_OPEN_RETRIES"
)

// LogPolicy controls the in-memory logger
type LogPolicy struct {
	Level      logs.Level
	BufferSize int // entries kept for /admin/logs and health analysis
}

type Config struct {
	Backend  Backend
	DSN      string
	HTTPAddr string
	Sweep    ttl.Config
	Log      LogPolicy
	Open     retry.Policy
}

func DefaultConfig() Config {
	return Config{
		Backend:  BackendSQLite,
		DSN:      "json-store.db",
		HTTPAddr: ":8080",
		Sweep:    ttl.DefaultConfig(),
		Log: LogPolicy{
			Level:      logs.INFO,
			BufferSize: 1000,
		},
		Open: retry.DefaultPolicy(),
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv starts from DefaultConfig and applies every variable that is set.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookup(EnvBackend); ok {
		backend := Backend(strings.ToLower(strings.TrimSpace(v)))
		switch backend {
		case BackendSQLite, BackendBolt:
			cfg.Backend = backend
		default:
			return Config{}, fmt.Errorf("%s: unknown backend %q", EnvBackend, v)
		}
	}

	if v, ok := lookup(EnvDSN); ok {
		if strings.TrimSpace(v) == "" {
			return Config{}, fmt.Errorf("%s: must not be empty", EnvDSN)
		}
		cfg.DSN = v
	}

	if v, ok := lookup(EnvHTTPAddr); ok {
		cfg.HTTPAddr = v
	}

	if v, ok := lookup(EnvSweepInterval); ok {
		seconds, err := positiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSweepInterval, err)
		}
		cfg.Sweep.Interval = time.Duration(seconds) * time.Second
	}

	if v, ok := lookup(EnvSweepOnInit); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSweepOnInit, err)
		}
		cfg.Sweep.RunOnInit = b
	}

	if v, ok := lookup(EnvLogLevel); ok {
		level, err := logs.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.Log.Level = level
	}

	if v, ok := lookup(EnvLogBuffer); ok {
		n, err := positiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogBuffer, err)
		}
		cfg.Log.BufferSize = n
	}

	if v, ok := lookup(EnvOpenRetries); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%s: want a non-negative integer, got %q", EnvOpenRetries, v)
		}
		cfg.Open.MaxRetries = n
	}

	return cfg, nil
}

func positiveInt(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("want an integer >= 1, got %q", v)
	}
	return n, nil
}
