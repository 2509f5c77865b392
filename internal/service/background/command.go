package background

import (
	"context"
	"fmt"

	"github.com/oshokin/shake-alarm/internal/bridge"
	"github.com/oshokin/shake-alarm/internal/config"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
	"github.com/oshokin/shake-alarm/internal/sensor"
	"github.com/oshokin/shake-alarm/internal/service/notify"
)

// Options controls a shake-background wake cycle.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
}

// RecordOptions controls the snapshot recorder.
type RecordOptions struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// MotionDevice overrides the accelerometer device from the settings.
	MotionDevice string
}

// Run executes one wake cycle with the configured budget.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-background")

	settings, b, err := open(opts.ConfigPath)
	if err != nil {
		return err
	}

	executor := NewExecutor(b,
		NewProcessChecker(settings.Monitor.ProcessName),
		notify.NewCommand(settings.NotifyCommand),
		Settings{
			Budget:       settings.Background.Budget,
			StaleAfter:   settings.Background.StaleAfter,
			PollInterval: settings.Background.PollInterval,
		})

	outcome, err := executor.Run(ctx)
	if err != nil {
		return fmt.Errorf("wake cycle: %w", err)
	}

	logger.InfoKV(ctx, "Wake cycle finished", "outcome", outcome.String())

	return nil
}

// Record feeds motion snapshots until ctx is canceled.
func Record(ctx context.Context, opts *RecordOptions) error {
	ctx = logger.WithName(ctx, "shake-background")

	settings, b, err := open(opts.ConfigPath)
	if err != nil {
		return err
	}

	device := settings.Motion.Device
	if opts.MotionDevice != "" {
		device = opts.MotionDevice
	}

	source, err := sensor.Open(device)
	if err != nil {
		return fmt.Errorf("open motion device: %w", err)
	}

	recorder := NewRecorder(b, NewProcessChecker(settings.Monitor.ProcessName), settings.Motion.SnapshotInterval)

	logger.InfoKV(ctx, "Recording motion snapshots", "motion_device", device, "store_dir", settings.StoreDir)

	return recorder.Run(ctx, source)
}

func open(configPath string) (*config.Config, *bridge.Bridge, error) {
	settings, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}

	store, err := kv.NewFileStore(settings.StoreDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	return settings, bridge.New(store), nil
}
