package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MYSPLIT_DB_PATH", "")
	t.Setenv("MYSPLIT_BACKEND", "")
	t.Setenv("MYSPLIT_REMOTE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("MYSPLIT_SYNC_DEBOUNCE_MS", "")
	t.Setenv("MYSPLIT_POLL_INTERVAL_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendHTTP {
		t.Errorf("backend = %q, want http", cfg.Backend)
	}
	if cfg.RemoteURL != "http://localhost:8080" {
		t.Errorf("remote url = %q, want derived from default port", cfg.RemoteURL)
	}
	if cfg.Debounce != 2*time.Second {
		t.Errorf("debounce = %v, want 2s", cfg.Debounce)
	}
	if cfg.DBPath == "" {
		t.Error("db path not defaulted")
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Errorf("address = %q, want :8080", cfg.HTTPAddress())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MYSPLIT_DB_PATH", "/tmp/x.db")
	t.Setenv("MYSPLIT_BACKEND", "memory")
	t.Setenv("PORT", "9090")
	t.Setenv("MYSPLIT_SYNC_DEBOUNCE_MS", "500")
	t.Setenv("MYSPLIT_POLL_INTERVAL_MS", "garbage")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Backend)
	}
	if cfg.Debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", cfg.Debounce)
	}
	// Unparseable durations fall back rather than fail.
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("poll interval = %v, want default 3s", cfg.PollInterval)
	}
	if cfg.HTTPAddress() != ":9090" {
		t.Errorf("address = %q, want :9090", cfg.HTTPAddress())
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("MYSPLIT_BACKEND", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Error("unknown backend accepted")
	}
}
