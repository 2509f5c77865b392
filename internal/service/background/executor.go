package background

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/shake-alarm/internal/bridge"
	"github.com/oshokin/shake-alarm/internal/detector"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/service/notify"
)

// Defaults of a wake cycle.
const (
	DefaultBudget       = 25 * time.Second
	DefaultStaleAfter   = 3 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Outcome describes how a wake cycle ended.
type Outcome uint8

const (
	// OutcomeNotArmed means the armed flag was off.
	OutcomeNotArmed Outcome = iota
	// OutcomeForegroundRunning means the monitor owns the detector right now.
	OutcomeForegroundRunning
	// OutcomeStationary means no fresh motion snapshot was available.
	OutcomeStationary
	// OutcomeTriggered means the trigger signal was raised.
	OutcomeTriggered
	// OutcomeBudgetExceeded means the budget ran out while motion continued.
	OutcomeBudgetExceeded
	// OutcomeCanceled means the host stopped the cycle.
	OutcomeCanceled
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeNotArmed:
		return "not_armed"
	case OutcomeForegroundRunning:
		return "foreground_running"
	case OutcomeStationary:
		return "stationary"
	case OutcomeTriggered:
		return "triggered"
	case OutcomeBudgetExceeded:
		return "budget_exceeded"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Settings tune an Executor.
type Settings struct {
	Budget       time.Duration
	StaleAfter   time.Duration
	PollInterval time.Duration
}

// Executor runs one background wake cycle per Run call.
type Executor struct {
	bridge   *bridge.Bridge
	checker  ForegroundChecker
	notifier notify.Notifier
	settings Settings
}

// NewExecutor creates an executor. checker and notifier may be nil.
func NewExecutor(b *bridge.Bridge, checker ForegroundChecker, notifier notify.Notifier, settings Settings) *Executor {
	if settings.Budget <= 0 {
		settings.Budget = DefaultBudget
	}

	if settings.StaleAfter <= 0 {
		settings.StaleAfter = DefaultStaleAfter
	}

	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}

	return &Executor{
		bridge:   b,
		checker:  checker,
		notifier: notifier,
		settings: settings,
	}
}

// Run executes one wake cycle. Running out of budget is a clean exit: the
// checkpoint is written after every consumed snapshot, so the next cycle
// continues where this one stopped.
//
//nolint:cyclop // One linear cycle; the exits are the documented outcomes.
func (e *Executor) Run(ctx context.Context) (Outcome, error) {
	ctx = logger.WithName(ctx, "background")

	ctx, cancel := context.WithTimeout(ctx, e.settings.Budget)
	defer cancel()

	armed, err := e.bridge.Armed(ctx)
	if err != nil {
		return OutcomeCanceled, fmt.Errorf("read armed flag: %w", err)
	}

	if !armed {
		logger.Debug(ctx, "Not armed, nothing to do")

		return OutcomeNotArmed, nil
	}

	if e.foregroundRunning(ctx) {
		logger.Debug(ctx, "Foreground monitor is running, skipping cycle")

		return OutcomeForegroundRunning, nil
	}

	det, checkpoint, err := e.restore(ctx)
	if err != nil {
		return OutcomeCanceled, err
	}

	ticker := time.NewTicker(e.settings.PollInterval)
	defer ticker.Stop()

	for {
		snapshot, ok, snapErr := e.bridge.MotionSnapshot(ctx)

		switch {
		case snapErr != nil:
			logger.WarnKV(ctx, "Failed to read motion snapshot", "error", snapErr)
		case !ok || time.Since(snapshot.CapturedAt) > e.settings.StaleAfter:
			logger.Debug(ctx, "Device is stationary, ending cycle")

			return OutcomeStationary, nil
		case snapshot.CapturedAt.After(checkpoint):
			checkpoint = snapshot.CapturedAt

			event := det.OnSample(snapshot)

			if saveErr := e.bridge.SaveCheckpoint(ctx, checkpoint); saveErr != nil {
				logger.WarnKV(ctx, "Failed to save checkpoint", "error", saveErr)
			}

			if event.Kind == domain.EventTriggered {
				return OutcomeTriggered, e.raise(ctx, snapshot.CapturedAt)
			}

			if event.Kind == domain.EventShakeCounted {
				logger.DebugKV(ctx, "Shake counted", "count", event.Count)
			}
		default:
			det.Expire(time.Now())
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.InfoKV(ctx, "Wake cycle ended", "reason", domain.ErrBudgetExceeded)

				return OutcomeBudgetExceeded, nil
			}

			return OutcomeCanceled, nil
		case <-ticker.C:
		}
	}
}

// restore arms a detector from the persisted config, shared cooldowns and
// the last consumed snapshot.
func (e *Executor) restore(ctx context.Context) (*detector.Detector, time.Time, error) {
	cfg, ok, err := e.bridge.DetectorConfig(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read detector config: %w", err)
	}

	if !ok {
		cfg = domain.DefaultDetectorConfig()
	}

	lastTriggerAt, err := e.bridge.LastTriggerAt(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read last trigger time: %w", err)
	}

	voice, err := e.bridge.VoiceCooldown(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read voice cooldown: %w", err)
	}

	checkpoint, err := e.bridge.Checkpoint(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read checkpoint: %w", err)
	}

	det := detector.New()
	if err = det.ArmAt(cfg, lastTriggerAt); err != nil {
		return nil, time.Time{}, fmt.Errorf("arm detector: %w", err)
	}

	det.Suppress(voice)

	return det, checkpoint, nil
}

// raise sets the trigger signal and posts a best-effort notification.
func (e *Executor) raise(ctx context.Context, at time.Time) error {
	// The signal must survive the budget running out right now.
	writeCtx := context.WithoutCancel(ctx)

	if err := e.bridge.RaiseTrigger(writeCtx, at); err != nil {
		return fmt.Errorf("raise trigger: %w", err)
	}

	logger.WarnKV(ctx, "Shake trigger raised", "detected_at", at)

	if e.notifier == nil {
		return nil
	}

	if err := e.notifier.Notify(ctx, "Shake alarm", "Emergency trigger detected, open the monitor to dispatch it"); err != nil {
		logger.WarnKV(ctx, "Failed to show notification", "error", err)
	}

	return nil
}

func (e *Executor) foregroundRunning(ctx context.Context) bool {
	if e.checker == nil {
		return false
	}

	running, err := e.checker.Running()
	if err != nil {
		logger.WarnKV(ctx, "Failed to inspect processes", "error", err)

		return false
	}

	return running
}
