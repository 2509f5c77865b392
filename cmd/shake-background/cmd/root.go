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
	"github.com/oshokin/shake-alarm/internal/service/background"
	"github.com/oshokin/shake-alarm/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel is the minimum level written to stdout.
	logLevel string

	// rootCmd represents one background wake cycle.
	rootCmd = &cobra.Command{
		Use:   "shake-background",
		Short: "Run one time-boxed background detection cycle.",
		Long: `Runs a single background wake cycle, meant to be started by a scheduler
(cron, systemd timer, launchd) while shake-monitor is not running.

The cycle exits immediately when the detector is disarmed or the monitor is
running. Otherwise it evaluates fresh motion snapshots with the persisted
detector settings until the device is stationary, a trigger fires or the
configured budget runs out. A trigger raises the signal that shake-monitor
dispatches on its next start.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: applyLogLevel,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return background.Run(ctx, &background.Options{ConfigPath: configPath})
		},
	}

	// recordCmd feeds motion snapshots for the wake cycles.
	recordCmd = &cobra.Command{
		Use:   "record [motion-device]",
		Short: "Persist throttled motion snapshots while the monitor is down.",
		Long: `Reads the accelerometer and keeps the persisted motion snapshot fresh so
background wake cycles have motion to evaluate. Refuses to start while
shake-monitor is running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var motionDevice string
			if len(args) > 0 {
				motionDevice = args[0]
			}

			return background.Record(ctx, &background.RecordOptions{
				ConfigPath:   configPath,
				MotionDevice: motionDevice,
			})
		},
	}
)

// Execute runs the shake-background CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(recordCmd)

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
