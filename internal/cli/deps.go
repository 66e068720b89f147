package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"jobqueue-go/internal/config"
	"jobqueue-go/internal/queue"
	"jobqueue-go/internal/store"
	memorystore "jobqueue-go/internal/store/memory"
	postgresstore "jobqueue-go/internal/store/postgres"
	redisstore "jobqueue-go/internal/store/redis"
)

// NewLogger builds the application logger from the logger config.
func NewLogger(cfg *config.LoggerConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// openStore connects the store selected by storage.mode.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		logger.Info("initializing in-memory storage")
		return memorystore.NewStore(), nil

	case config.StorageModeRedis:
		logger.Info("initializing redis storage", "address", cfg.Redis.RedisAddr())
		return redisstore.NewStore(&cfg.Redis)

	case config.StorageModePostgres:
		logger.Info("initializing postgres storage", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		db, err := postgresstore.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, err
		}

		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database migrations completed")

		return postgresstore.NewStore(db), nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStorageMode, cfg.Storage.Mode)
	}
}

// openManager opens the configured store and wraps it in a queue manager.
// The caller closes the manager.
func openManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queue.Manager, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return queue.NewManager(st, queue.OptionsFromConfig(&cfg.Queue), logger), nil
}
