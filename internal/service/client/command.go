package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/shake-alarm/internal/api/grpc/status"
	"github.com/oshokin/shake-alarm/internal/bridge"
	"github.com/oshokin/shake-alarm/internal/config"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
)

// Options configures an arm or disarm request.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// DesiredState represents the target armed flag.
	DesiredState bool

	// Overrides replace detector settings from the config file when arming.
	Overrides Overrides

	// MuteFor suppresses triggers for the given duration after the change.
	MuteFor time.Duration

	// ConfirmTimeout bounds the wait for the monitor to report the new state.
	// Zero uses DefaultConfirmTimeout.
	ConfirmTimeout time.Duration
}

// Overrides holds optional detector settings; nil fields keep config values.
type Overrides struct {
	ThresholdDelta *float64
	RequiredCount  *uint32
	ResetWindow    *time.Duration
	Cooldown       *time.Duration
}

// Apply returns cfg with the set overrides applied.
func (o Overrides) Apply(cfg domain.DetectorConfig) domain.DetectorConfig {
	if o.ThresholdDelta != nil {
		cfg.ThresholdDelta = *o.ThresholdDelta
	}

	if o.RequiredCount != nil {
		cfg.RequiredCount = *o.RequiredCount
	}

	if o.ResetWindow != nil {
		cfg.ResetWindow = *o.ResetWindow
	}

	if o.Cooldown != nil {
		cfg.Cooldown = *o.Cooldown
	}

	return cfg
}

const (
	// defaultPushInterval defines retry delay when a store write fails.
	defaultPushInterval = 1 * time.Second
	// defaultMaxAttempts bounds the retries of transient failures.
	defaultMaxAttempts = 5
	// DefaultConfirmTimeout covers a few monitor poll intervals.
	DefaultConfirmTimeout = 5 * time.Second
	// confirmInterval spaces out status checks.
	confirmInterval = 500 * time.Millisecond
)

// errTooManyAttempts is returned when every attempt hit a transient failure.
var errTooManyAttempts = errors.New("store write kept failing")

// Run loads settings, writes the requested state and waits for the monitor's
// confirmation if its status server is configured.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "shake-arm/disarm")

	settings, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	store, err := kv.NewFileStore(settings.StoreDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	logger.DebugKV(ctx, "Using durable store", "store_dir", store.Dir())

	detectorConfig := opts.Overrides.Apply(settings.Detector)

	if err = push(ctx, bridge.New(store), opts, detectorConfig); err != nil {
		return err
	}

	if addr := settings.Monitor.StatusListenAddress; addr != "" {
		confirm(ctx, addr, opts)
	}

	return nil
}

// push writes the state, retrying transient store failures.
func push(ctx context.Context, b *bridge.Bridge, opts *Options, cfg domain.DetectorConfig) error {
	// Invalid settings never reach the store.
	if opts.DesiredState {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Pushing desired armed state", "desired_state", opts.DesiredState)

	// attempt tries once to write the state, returns (completed, error).
	attempt := func() (bool, error) {
		err := write(ctx, b, opts, cfg)

		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, domain.ErrTransientIO):
			// Log error but continue retrying for transient failures.
			logger.ErrorKV(ctx, "Store write failed", "error", err)

			return false, nil
		default:
			return false, err
		}
	}

	ticker := time.NewTicker(defaultPushInterval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		done, err := attempt()
		if err != nil {
			return err
		}

		if done {
			logger.InfoKV(ctx, "Armed state updated", "armed", opts.DesiredState)

			return nil
		}

		if n == defaultMaxAttempts {
			return errTooManyAttempts
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func write(ctx context.Context, b *bridge.Bridge, opts *Options, cfg domain.DetectorConfig) error {
	var err error
	if opts.DesiredState {
		err = b.Arm(ctx, cfg)
	} else {
		err = b.Disarm(ctx)
	}

	if err != nil {
		return err
	}

	if opts.MuteFor > 0 {
		return b.SetVoiceCooldown(ctx, time.Now().Add(opts.MuteFor))
	}

	return nil
}

// confirm polls the monitor's status server until it reports the desired
// state or the timeout passes. It only logs.
func confirm(ctx context.Context, address string, opts *Options) {
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := status.Dial(ctx, address)
	if err != nil {
		logger.WarnKV(ctx, "Cannot reach monitor status server", "error", err)

		return
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	ticker := time.NewTicker(confirmInterval)
	defer ticker.Stop()

	for {
		armed, checkErr := client.Armed(ctx)
		if checkErr == nil && armed == opts.DesiredState {
			logger.InfoKV(ctx, "Monitor confirmed the new state", "armed", armed)

			return
		}

		select {
		case <-ctx.Done():
			logger.WarnKV(ctx, "Monitor did not confirm the new state, it applies the flag when it next polls",
				"status_address", address, "last_error", checkErr)

			return
		case <-ticker.C:
		}
	}
}
