// Package bootstrap builds a ready core.Service from configuration.
// The server and the CLI both start through Open.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/clientdedup/internal/config"
	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/progress"
	"github.com/JonMunkholm/clientdedup/internal/storage"

	// Backends register themselves with the storage registry.
	_ "github.com/JonMunkholm/clientdedup/internal/storage/memory"
	_ "github.com/JonMunkholm/clientdedup/internal/storage/postgres"
	_ "github.com/JonMunkholm/clientdedup/internal/storage/sqlite"
)

// App owns the service and the resources behind it.
type App struct {
	Service *core.Service
	Store   core.Store
	tracker *progress.RedisTracker
	logger  *slog.Logger
}

// Open connects storage and, when configured, the Redis progress tracker.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Open(ctx, StorageConfig(cfg.Storage))
	if err != nil {
		return nil, err
	}
	logger.Info("storage ready", "backend", cfg.Storage.Backend)

	app := &App{Store: store, logger: logger}

	var tracker core.ProgressTracker
	if cfg.Redis.ProgressEnabled() {
		app.tracker, err = progress.Connect(ctx, cfg.Redis.URL, cfg.Redis.ProgressTTL, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("progress tracker: %w", err)
		}
		tracker = app.tracker
		logger.Info("import progress enabled", "ttl", cfg.Redis.ProgressTTL)
	}

	app.Service = core.NewService(store, core.ServiceConfig{
		Batch: core.BatchConfig{
			ChunkSize: cfg.Import.ChunkSize,
			MaxErrors: cfg.Import.MaxErrors,
		},
		ImportTimeout: cfg.Import.Timeout,
		Limiter:       core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		Progress:      tracker,
		Logger:        logger,
	})
	return app, nil
}

// StorageConfig maps the storage section onto the registry's config.
func StorageConfig(c config.StorageConfig) storage.Config {
	return storage.Config{
		Kind:            strings.ToLower(c.Backend),
		DSN:             c.URL,
		MaxConns:        int32(c.MaxConns),
		MinConns:        int32(c.MinConns),
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

// Close releases the tracker and the store.
func (a *App) Close() {
	if a.tracker != nil {
		if err := a.tracker.Close(); err != nil {
			a.logger.Warn("close progress tracker", "error", err)
		}
	}
	a.Store.Close()
}
