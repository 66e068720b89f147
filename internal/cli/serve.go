package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"jobqueue-go/internal/api"
	"jobqueue-go/internal/banner"
	kafkarelay "jobqueue-go/internal/relay/kafka"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the Kafka relay when enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// runServe starts the API server and the optional relay and blocks until
// ctx is canceled or one of them fails.
func runServe(ctx context.Context, opts *options) error {
	cfg := opts.cfg
	logger := NewLogger(&cfg.Logger, os.Stdout)

	banner.Print(os.Stdout)

	logger.Info("configuration loaded",
		"path", opts.configPath,
		"storage_mode", cfg.Storage.Mode,
	)

	manager, err := openManager(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		return err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := api.NewServer(api.ServerDeps{
		Config:       &cfg.Server,
		Logger:       logger,
		Health:       manager,
		QueueHandler: api.NewQueueHandler(manager, cfg.MaxWait(), logger),
	})

	var relay *kafkarelay.Relay
	if cfg.Kafka.Enabled {
		target, err := manager.Queue(cfg.Kafka.Queue)
		if err != nil {
			return err
		}
		relay = kafkarelay.NewRelay(kafkarelay.NewReader(&cfg.Kafka), target, logger)

		// Start relay in background
		go func() {
			if err := relay.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("relay error", "error", err)
				cancel()
			}
		}()
	}

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("jobqueue started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
		"kafka_relay", cfg.Kafka.Enabled,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if relay != nil {
		if err := relay.Close(); err != nil {
			logger.Error("relay shutdown error", "error", err)
		}
	}

	logger.Info("jobqueue stopped")
	return nil
}
