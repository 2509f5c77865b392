package background

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshokin/shake-alarm/internal/bridge"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/sensor"
)

// DefaultSnapshotInterval is the minimum spacing of recorded snapshots.
const DefaultSnapshotInterval = 200 * time.Millisecond

// errForegroundRunning is returned by Recorder.Run when the monitor already
// owns the motion device.
var errForegroundRunning = errors.New("foreground monitor is running")

// Recorder persists throttled motion snapshots while the monitor is down.
type Recorder struct {
	bridge   *bridge.Bridge
	checker  ForegroundChecker
	interval time.Duration
}

// NewRecorder creates a recorder; checker may be nil.
func NewRecorder(b *bridge.Bridge, checker ForegroundChecker, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}

	return &Recorder{bridge: b, checker: checker, interval: interval}
}

// Run copies samples from source into the motion snapshot until ctx is done
// or the source ends.
func (r *Recorder) Run(ctx context.Context, source sensor.Source) error {
	ctx = logger.WithName(ctx, "recorder")

	if r.checker != nil {
		if running, err := r.checker.Running(); err == nil && running {
			return errForegroundRunning
		}
	}

	limiter := rate.NewLimiter(rate.Every(r.interval), 1)

	var saved, failed int

	err := source.Run(ctx, func(s domain.MotionSample) {
		if !limiter.Allow() {
			return
		}

		if saveErr := r.bridge.SaveMotionSnapshot(ctx, s); saveErr != nil {
			failed++

			logger.WarnKV(ctx, "Failed to save motion snapshot", "error", saveErr)

			return
		}

		saved++
	})

	logger.InfoKV(ctx, "Recorder stopped", "saved", saved, "failed", failed)

	if err != nil {
		return fmt.Errorf("read motion samples: %w", err)
	}

	return nil
}
