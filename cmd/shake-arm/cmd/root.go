package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	// Detector overrides; applied only when the flag is set.
	threshold     float64
	requiredCount uint32
	resetWindow   time.Duration
	cooldown      time.Duration
	muteFor       time.Duration

	// rootCmd represents the base command for arming the detector.
	rootCmd = &cobra.Command{
		Use:   "shake-arm",
		Short: "Arm the shake detector.",
		Long: `Arms the shake detector shared by shake-monitor and shake-background.

Writes the detector settings and then the armed flag to the durable store.
Settings come from the configuration file; flags override single values.
Invalid settings are rejected and nothing is written.

When the monitor's status server is configured, waits until the monitor
reports the detector as armed.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: applyLogLevel,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var overrides client.Overrides

			flags := cmd.Flags()
			if flags.Changed("threshold") {
				overrides.ThresholdDelta = &threshold
			}

			if flags.Changed("required-count") {
				overrides.RequiredCount = &requiredCount
			}

			if flags.Changed("reset-window") {
				overrides.ResetWindow = &resetWindow
			}

			if flags.Changed("cooldown") {
				overrides.Cooldown = &cooldown
			}

			return client.Run(ctx, &client.Options{
				ConfigPath:   configPath,
				DesiredState: true,
				Overrides:    overrides,
				MuteFor:      muteFor,
			})
		},
	}
)

// Execute runs the shake-arm CLI and exits with non-zero status on error.
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

	rootCmd.Flags().Float64Var(&threshold, "threshold", 0, "motion delta a sample must exceed to count")
	rootCmd.Flags().Uint32Var(&requiredCount, "required-count", 0, "number of shakes that fire a trigger")
	rootCmd.Flags().DurationVar(&resetWindow, "reset-window", 0, "time after which a partial count is dropped")
	rootCmd.Flags().DurationVar(&cooldown, "cooldown", 0, "minimum time between triggers")
	rootCmd.Flags().DurationVar(&muteFor, "mute-for", 0, "suppress triggers for this long after arming")
}
