// Package cli contains the Cobra commands of the jobqueue binary.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"jobqueue-go/internal/banner"
	"jobqueue-go/internal/config"
)

const (
	defaultConfigPath = "config/config.yaml"
	defaultQueueName  = "default"
)

// options holds values shared by every subcommand.
type options struct {
	configPath string
	queueName  string

	cfg *config.Config
}

// NewRoot constructs the root command and registers all subcommands.
func NewRoot() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "jobqueue",
		Short:         "Reliable at-least-once job queue",
		Long:          "jobqueue serves and operates named job queues backed by Redis, PostgreSQL or memory.",
		Version:       banner.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to configuration file")
	root.PersistentFlags().StringVarP(&opts.queueName, "queue", "q", defaultQueueName, "queue name")

	root.AddCommand(
		newServeCommand(opts),
		newPublishCommand(opts),
		newPeekCommand(opts),
		newTakeCommand(opts),
		newReserveCommand(opts),
		newFinishCommand(opts),
		newCountCommand(opts),
	)

	return root
}

// loadConfig reads the config file. A missing file at the default path
// falls back to the built-in defaults; an explicit path must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
}
