package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8085" || cfg.WSAddr != ":8086" {
		t.Fatalf("unexpected addrs: %s %s", cfg.HTTPAddr, cfg.WSAddr)
	}
	if cfg.RequestExpiry != 30*time.Second {
		t.Fatalf("RequestExpiry = %v", cfg.RequestExpiry)
	}
	if cfg.DisconnectGrace != 2*time.Minute {
		t.Fatalf("DisconnectGrace = %v", cfg.DisconnectGrace)
	}
	if cfg.UndoAllowance != 3 || cfg.MinAbortPlies != 2 {
		t.Fatalf("unexpected allowances: %d %d", cfg.UndoAllowance, cfg.MinAbortPlies)
	}
	if cfg.DefaultInitialMs != 300000 {
		t.Fatalf("DefaultInitialMs = %d", cfg.DefaultInitialMs)
	}
}

func TestLoadRequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("COORD_HTTP_ADDR", ":9000")
	t.Setenv("MATCH_REQUEST_EXPIRY", "45s")
	t.Setenv("MATCH_DISCONNECT_GRACE", "90")
	t.Setenv("MATCH_UNDO_ALLOWANCE", "1")
	t.Setenv("MATCH_DEFAULT_INITIAL_MS", "600000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("HTTPAddr = %s", cfg.HTTPAddr)
	}
	if cfg.RequestExpiry != 45*time.Second {
		t.Fatalf("RequestExpiry = %v", cfg.RequestExpiry)
	}
	// Bare integers are read as seconds.
	if cfg.DisconnectGrace != 90*time.Second {
		t.Fatalf("DisconnectGrace = %v", cfg.DisconnectGrace)
	}
	if cfg.UndoAllowance != 1 {
		t.Fatalf("UndoAllowance = %d", cfg.UndoAllowance)
	}
	if cfg.DefaultInitialMs != 600000 {
		t.Fatalf("DefaultInitialMs = %d", cfg.DefaultInitialMs)
	}
}

func TestLoadIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MATCH_UNDO_ALLOWANCE", "many")
	t.Setenv("MATCH_REQUEST_EXPIRY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UndoAllowance != 3 || cfg.RequestExpiry != 30*time.Second {
		t.Fatalf("garbage values should keep defaults: %d %v", cfg.UndoAllowance, cfg.RequestExpiry)
	}
}
