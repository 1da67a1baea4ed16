// Package db is the storage factory: it selects and opens the active
// backend from configuration and hands back the uniform storage.Store.
//
// Backend selection happens exactly once, at process start. Everything
// downstream of Open holds a *storage.Store and never branches on which
// backend is underneath.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TuckerTucker/tkr-agent-chat/internal/config"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage/kvstore"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage/sqlite"
)

// NewDriver constructs the backend named by cfg.Backend without wrapping
// it in a Store. Most callers want Open instead.
func NewDriver(cfg config.Config, logger *slog.Logger) (storage.Driver, error) {
	switch cfg.Backend {
	case storage.BackendKV:
		return kvstore.New(kvstore.Options{
			Path:    cfg.Path,
			MaxSize: cfg.MaxSizeBytes,
			Order:   cfg.SessionOrder,
			Logger:  logger,
		})
	case storage.BackendSQLite:
		return sqlite.New(sqlite.Options{
			Path:     cfg.Path,
			PoolSize: cfg.PoolSize,
			Order:    cfg.SessionOrder,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("db: unknown backend %q", cfg.Backend)
	}
}

// Open selects the backend, wraps it in a Store, and runs idempotent
// initialization (directories, tables or schema, default agent cards).
// Safe to call on every process start. Open failures carry
// storage.ErrUnavailable and are fatal to startup.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.Store, error) {
	driver, err := NewDriver(cfg, logger)
	if err != nil {
		return nil, err
	}

	store := storage.New(driver, logger)
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("db: init %s backend: %w", cfg.Backend, err)
	}

	if logger != nil {
		info, err := store.Info(ctx)
		if err == nil {
			logger.Info("storage ready",
				"backend", info.Backend, "location", info.Location, "version", info.Version)
		}
	}
	return store, nil
}
