// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
)

// Config holds all application configuration. It is read once at process
// start; backend selection never changes at runtime.
type Config struct {
	// Storage settings.
	Backend      storage.Backend // "kv" or "sqlite".
	Path         string          // Storage environment directory.
	MaxSizeBytes int             // KV memory-map size; set generously, it cannot grow without reopening.
	PoolSize     int             // SQLite connection pool size; 0 means auto.
	SessionOrder storage.SessionOrder

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (Config, error) {
	cfg := Config{
		Backend:      storage.Backend(envStr("TKR_DB_BACKEND", string(storage.BackendKV))),
		Path:         envStr("TKR_DB_PATH", "chats"),
		MaxSizeBytes: envInt("TKR_DB_MAX_SIZE_BYTES", 1<<30),
		PoolSize:     envInt("TKR_DB_POOL_SIZE", 0),
		SessionOrder: storage.SessionOrder(envStr("TKR_SESSION_ORDER", string(storage.OrderRecent))),
		LogLevel:     envStr("TKR_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.Backend {
	case storage.BackendKV, storage.BackendSQLite:
	default:
		return fmt.Errorf("config: unknown TKR_DB_BACKEND %q", c.Backend)
	}
	switch c.SessionOrder {
	case storage.OrderRecent, storage.OrderInsertion:
	default:
		return fmt.Errorf("config: unknown TKR_SESSION_ORDER %q", c.SessionOrder)
	}
	if c.Path == "" {
		return fmt.Errorf("config: TKR_DB_PATH is required")
	}
	if c.MaxSizeBytes <= 0 {
		return fmt.Errorf("config: TKR_DB_MAX_SIZE_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
