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
	"github.com/oshokin/shake-alarm/internal/service/monitor"
	"github.com/oshokin/shake-alarm/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel is the minimum level written to stdout.
	logLevel string
	// gpsDevice overrides the configured GPS device.
	gpsDevice string
	// statusAddress overrides the configured status listen address.
	statusAddress string

	// rootCmd represents the base command for the foreground monitor.
	rootCmd = &cobra.Command{
		Use:   "shake-monitor [motion-device]",
		Short: "Run the foreground shake monitor.",
		Long: `Runs the foreground shake detector and live location tracking.

Reads accelerometer samples from the motion device ("stdin", "serial:<port>[@baud]"
or a file), follows the armed flag written by shake-arm and shake-disarm, and
polls the trigger signal raised by shake-background every two seconds.

Every trigger is logged, shown as a local notification and starts (or extends)
a tracking session that records GPS fixes into the location database for the
configured duration. A session interrupted by a restart is resumed.`,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: applyLogLevel,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use motion device argument if provided, otherwise rely on config.
			var motionDevice string
			if len(args) > 0 {
				motionDevice = args[0]
			}

			return monitor.Run(ctx, &monitor.Options{
				ConfigPath:          configPath,
				MotionDevice:        motionDevice,
				GPSDevice:           gpsDevice,
				StatusListenAddress: statusAddress,
			})
		},
	}

	// trackCmd prints the positions behind a tracking reference.
	trackCmd = &cobra.Command{
		Use:   "track <reference>",
		Short: "Print the positions recorded for a tracking reference.",
		Long: `Resolves the opaque tracking reference handed to notifiers with a trigger
and prints every position recorded for that alert, oldest first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitor.Track(cmd.Context(), &monitor.TrackOptions{
				ConfigPath: configPath,
				Reference:  args[0],
			}, cmd.OutOrStdout())
		},
	}
)

// Execute runs the shake-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(trackCmd)

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

	rootCmd.Flags().StringVarP(&gpsDevice, "gps", "g", "", "GPS device (serial:<port>[@baud] or NMEA file)")
	rootCmd.Flags().StringVarP(&statusAddress, "status-address", "s", "", "listen address of the gRPC status server")
}
