package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string
	WSAddr   string

	RedisURL    string
	DatabaseURL string

	// Consent protocol timing.
	RequestExpiry       time.Duration
	SupersedeCooldown   time.Duration
	StaleRequestTimeout time.Duration

	// Connection lifecycle.
	DisconnectGrace time.Duration

	// Session housekeeping.
	Retention         time.Duration
	ClockSyncInterval time.Duration
	SnapshotInterval  time.Duration

	UndoAllowance int
	MinAbortPlies int

	DefaultInitialMs   int64
	DefaultIncrementMs int64

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:            ":8085",
		WSAddr:              ":8086",
		RequestExpiry:       30 * time.Second,
		SupersedeCooldown:   10 * time.Second,
		StaleRequestTimeout: 60 * time.Second,
		DisconnectGrace:     2 * time.Minute,
		Retention:           5 * time.Minute,
		ClockSyncInterval:   time.Second,
		SnapshotInterval:    30 * time.Second,
		UndoAllowance:       3,
		MinAbortPlies:       2,
		DefaultInitialMs:    5 * 60 * 1000,
		DefaultIncrementMs:  0,
	}

	if v := strings.TrimSpace(os.Getenv("COORD_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("COORD_WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	loadDuration(&cfg.RequestExpiry, "MATCH_REQUEST_EXPIRY")
	loadDuration(&cfg.SupersedeCooldown, "MATCH_SUPERSEDE_COOLDOWN")
	loadDuration(&cfg.StaleRequestTimeout, "MATCH_STALE_REQUEST_TIMEOUT")
	loadDuration(&cfg.DisconnectGrace, "MATCH_DISCONNECT_GRACE")
	loadDuration(&cfg.Retention, "MATCH_RETENTION")
	loadDuration(&cfg.ClockSyncInterval, "MATCH_CLOCK_SYNC_INTERVAL")
	loadDuration(&cfg.SnapshotInterval, "MATCH_SNAPSHOT_INTERVAL")

	if v := strings.TrimSpace(os.Getenv("MATCH_UNDO_ALLOWANCE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.UndoAllowance = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_MIN_ABORT_PLIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MinAbortPlies = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_DEFAULT_INITIAL_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.DefaultInitialMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_DEFAULT_INCREMENT_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.DefaultIncrementMs = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// loadDuration accepts Go duration strings ("30s", "2m") or bare seconds.
func loadDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}
