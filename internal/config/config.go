// Package config sources runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the remote store implementation at startup.
type Backend string

const (
	// BackendMemory runs against the in-process reference backend:
	// fully offline, nothing shared with other devices.
	BackendMemory Backend = "memory"

	// BackendHTTP talks to a mysplitd server.
	BackendHTTP Backend = "http"
)

// Config holds the runtime configuration of the CLI and the server.
type Config struct {
	DBPath       string        // local cache database
	Backend      Backend       // remote store selection
	RemoteURL    string        // mysplitd base URL, required for BackendHTTP
	Port         string        // mysplitd listen port
	Debounce     time.Duration // background sync debounce/retry interval
	PollInterval time.Duration // subscription poll interval (http backend)
}

// Load reads configuration from the environment, after loading a .env file
// if one is present, and performs minimal validation.
func Load() (Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := Config{
		DBPath:       fallback(os.Getenv("MYSPLIT_DB_PATH"), defaultDBPath()),
		Backend:      Backend(fallback(os.Getenv("MYSPLIT_BACKEND"), string(BackendHTTP))),
		RemoteURL:    strings.TrimSpace(os.Getenv("MYSPLIT_REMOTE_URL")),
		Port:         fallback(os.Getenv("PORT"), "8080"),
		Debounce:     durationFromEnv("MYSPLIT_SYNC_DEBOUNCE_MS", 2*time.Second),
		PollInterval: durationFromEnv("MYSPLIT_POLL_INTERVAL_MS", 3*time.Second),
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendHTTP:
		if cfg.RemoteURL == "" {
			cfg.RemoteURL = "http://localhost:" + cfg.Port
		}
	default:
		return Config{}, fmt.Errorf("MYSPLIT_BACKEND must be %q or %q, got %q", BackendMemory, BackendHTTP, cfg.Backend)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the server to bind to.
func (c Config) HTTPAddress() string {
	return ":" + c.Port
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/mysplit.db"
	}
	return filepath.Join(home, ".mysplit", "mysplit.db")
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
