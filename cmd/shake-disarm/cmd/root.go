package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/shake-alarm/internal/config"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/service/client"
	"github.com/oshokin/shake-alarm/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel is the minimum level written to stdout.
	logLevel string

	// rootCmd represents the base command for disarming the detector.
	rootCmd = &cobra.Command{
		Use:   "shake-disarm",
		Short: "Disarm the shake detector.",
		Long: `Clears the armed flag in the durable store.

The running monitor disarms its detector on the next poll and the background
executor stops evaluating motion snapshots. A running tracking session is not
affected.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: applyLogLevel,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return client.Run(ctx, &client.Options{
				ConfigPath:   configPath,
				DesiredState: false,
			})
		},
	}
)

// Execute runs the shake-disarm CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	// Flush buffered log entries before exiting.
	_ = logger.Logger().Sync()

	if err != nil {
		os.Exit(1)
	}
}

func applyLogLevel(*cobra.Command, []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", logLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}
