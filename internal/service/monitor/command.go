package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/shake-alarm/internal/api/grpc/status"
	"github.com/oshokin/shake-alarm/internal/bridge"
	"github.com/oshokin/shake-alarm/internal/config"
	"github.com/oshokin/shake-alarm/internal/consumer"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/gps"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
	"github.com/oshokin/shake-alarm/internal/repository/location"
	"github.com/oshokin/shake-alarm/internal/sensor"
	"github.com/oshokin/shake-alarm/internal/service/notify"
	"github.com/oshokin/shake-alarm/internal/tracking"
)

// Options controls the shake-monitor process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// MotionDevice overrides the accelerometer device from the settings.
	MotionDevice string
	// GPSDevice overrides the GPS device from the settings.
	GPSDevice string
	// StatusListenAddress overrides the status server address.
	StatusListenAddress string
}

// Run loads the settings, wires the stores and devices and runs the monitor
// until ctx is canceled.
//
//nolint:funlen // Linear wiring of the process; splitting adds indirection only.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-monitor")

	settings, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Command line arguments override the settings file.
	if opts.MotionDevice != "" {
		settings.Motion.Device = opts.MotionDevice
	}

	if opts.GPSDevice != "" {
		settings.GPS.Device = opts.GPSDevice
	}

	if opts.StatusListenAddress != "" {
		settings.Monitor.StatusListenAddress = opts.StatusListenAddress
	}

	if err = config.Validate(settings); err != nil {
		return err
	}

	store, err := kv.NewFileStore(settings.StoreDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	sink, err := location.Open(settings.SinkPath)
	if err != nil {
		return fmt.Errorf("open location sink: %w", err)
	}

	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close location sink", "error", closeErr)
		}
	}()

	motion, err := sensor.Open(settings.Motion.Device)
	if err != nil {
		return fmt.Errorf("open motion device: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	// Background goroutines stop before the sink is closed.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	provider, err := startProvider(ctx, &wg, settings)
	if err != nil {
		return err
	}

	statusServer := status.NewServer()
	if addr := settings.Monitor.StatusListenAddress; addr != "" {
		wg.Go(func() {
			if serveErr := statusServer.ListenAndServe(ctx, addr); serveErr != nil {
				logger.ErrorKV(ctx, "Status server failed", "error", serveErr)
			}
		})
	}

	b := bridge.New(store)
	tracker := tracking.NewManager(provider, sink, b, &tracking.Options{
		PollInterval:    settings.Tracking.PollInterval,
		DefaultDuration: settings.Tracking.Duration,
	})

	m := New(Deps{
		Bridge:     b,
		Tracker:    tracker,
		References: sink,
		Consumer:   newConsumer(settings),
		Status:     statusServer,
	}, Settings{
		OwnerID:             settings.OwnerID,
		TrackingDuration:    settings.Tracking.Duration,
		TriggerPollInterval: settings.Monitor.TriggerPollInterval,
		SnapshotInterval:    settings.Motion.SnapshotInterval,
	})

	logger.InfoKV(ctx, "Shake monitor configured",
		"store_dir", settings.StoreDir,
		"sink_path", settings.SinkPath,
		"motion_device", settings.Motion.Device,
		"gps_device", settings.GPS.Device)

	err = m.Run(ctx, motion)

	cancel()

	return err
}

// startProvider opens the GPS receiver, or returns gps.Disabled when none is
// configured.
func startProvider(ctx context.Context, wg *sync.WaitGroup, settings *config.Config) (tracking.Provider, error) {
	if settings.GPS.Device == "" {
		logger.Warn(ctx, "No GPS device configured, tracking sessions will record nothing")

		return gps.Disabled{}, nil
	}

	receiver, err := gps.Open(settings.GPS.Device, settings.GPS.BaudRate, settings.GPS.MaxFixAge)
	if err != nil {
		return nil, fmt.Errorf("open gps device: %w", err)
	}

	wg.Go(func() {
		if runErr := receiver.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.ErrorKV(ctx, "GPS receiver stopped", "error", runErr)
		}
	})

	return receiver, nil
}

// newConsumer logs every trigger and shows a local notification for it.
func newConsumer(settings *config.Config) consumer.Consumer {
	notifier := notify.NewCommand(settings.NotifyCommand)

	return consumer.Multi{
		consumer.LogConsumer{},
		consumer.Func(func(ctx context.Context, trigger domain.Trigger) error {
			body := fmt.Sprintf("Emergency alert %s started (%s)", trigger.AlertID, trigger.Source)

			return notifier.Notify(ctx, "Shake alarm", body)
		}),
	}
}
