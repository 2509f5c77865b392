package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oshokin/shake-alarm/internal/bridge"
	"github.com/oshokin/shake-alarm/internal/consumer"
	"github.com/oshokin/shake-alarm/internal/detector"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/sensor"
)

const (
	// DefaultTriggerPollInterval is how often the trigger signal is checked.
	DefaultTriggerPollInterval = 2 * time.Second
	// DefaultSnapshotInterval is the minimum spacing of persisted snapshots.
	DefaultSnapshotInterval = 200 * time.Millisecond
	// sampleBuffer decouples the sensor reader from the event loop.
	sampleBuffer = 64
)

// Tracker is the part of the tracking manager the monitor drives.
type Tracker interface {
	Start(ctx context.Context, ownerID, alertID string, duration time.Duration) error
	Resume(ctx context.Context) error
	Suspend()
	Active() (domain.TrackingSession, bool)
}

// References produces opaque tracking references for alerts.
type References interface {
	TrackingReference(ctx context.Context, alertID string) (string, error)
}

// StatusReporter receives state changes for the status transport.
type StatusReporter interface {
	SetArmed(armed bool)
	SetTracking(active bool)
}

// Deps are the collaborators of a Monitor.
type Deps struct {
	Bridge     *bridge.Bridge
	Tracker    Tracker
	References References
	Consumer   consumer.Consumer
	// Status is optional.
	Status StatusReporter
}

// Settings tune a Monitor.
type Settings struct {
	OwnerID             string
	TrackingDuration    time.Duration
	TriggerPollInterval time.Duration
	SnapshotInterval    time.Duration
}

// Monitor runs the foreground event loop. Run must be called once.
type Monitor struct {
	deps     Deps
	settings Settings

	detector *detector.Detector
	limiter  *rate.Limiter
	// armedAt is the arm time the live detector was armed for.
	armedAt time.Time
	// newAlertID generates ids for triggers that start a new alert.
	newAlertID func() string
}

// New creates a monitor.
func New(deps Deps, settings Settings) *Monitor {
	if settings.TriggerPollInterval <= 0 {
		settings.TriggerPollInterval = DefaultTriggerPollInterval
	}

	if settings.SnapshotInterval <= 0 {
		settings.SnapshotInterval = DefaultSnapshotInterval
	}

	if deps.Status == nil {
		deps.Status = nopStatus{}
	}

	return &Monitor{
		deps:       deps,
		settings:   settings,
		detector:   detector.New(),
		limiter:    rate.NewLimiter(rate.Every(settings.SnapshotInterval), 1),
		newAlertID: uuid.NewString,
	}
}

// Run processes motion samples from source until ctx is canceled or the motion
// permission is lost. A tracking session persisted by an earlier run is
// resumed first; the running session is suspended (not cleared) on return.
// After a permission loss the detector is disarmed but Run keeps serving an
// active tracking session until it ends, then returns the error.
//
//nolint:cyclop // The event loop is a single select; splitting it hides the flow.
func (m *Monitor) Run(ctx context.Context, source sensor.Source) error {
	ctx = logger.WithName(ctx, "monitor")

	// Pick up a tracking session interrupted by a restart.
	if err := m.deps.Tracker.Resume(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to resume tracking session", "error", err)
	}

	m.syncArmed(ctx)
	m.reportTracking()

	samples := make(chan domain.MotionSample, sampleBuffer)
	sensorDone := make(chan error, 1)

	sensorCtx, stopSensor := context.WithCancel(ctx)

	var wg sync.WaitGroup

	wg.Go(func() {
		sensorDone <- source.Run(sensorCtx, func(s domain.MotionSample) {
			select {
			case samples <- s:
			case <-sensorCtx.Done():
			}
		})
	})

	defer func() {
		stopSensor()
		wg.Wait()
		m.deps.Tracker.Suspend()
	}()

	ticker := time.NewTicker(m.settings.TriggerPollInterval)
	defer ticker.Stop()

	// The reset timer is only armed while a partial count is pending.
	resetTimer := time.NewTimer(time.Hour)
	resetTimer.Stop()

	defer resetTimer.Stop()

	var (
		resetC <-chan time.Time
		// lost is set once the motion permission is gone.
		lost error
	)

	logger.InfoKV(ctx, "Monitor started",
		"owner_id", m.settings.OwnerID,
		"trigger_poll_interval", m.settings.TriggerPollInterval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return lost
		case sample := <-samples:
			m.handleSample(ctx, sample)
		case <-resetC:
			m.logEvent(ctx, m.detector.Expire(time.Now()))
		case err := <-sensorDone:
			// Stop selecting on the finished reader.
			sensorDone = nil

			if errors.Is(err, domain.ErrPermissionLost) {
				m.loseMotionAccess(ctx, err)

				lost = fmt.Errorf("read motion samples: %w", err)
				if m.trackingEnded() {
					return lost
				}

				logger.Warn(ctx, "Location tracking continues until the active session ends")

				continue
			}

			if err != nil {
				return fmt.Errorf("read motion samples: %w", err)
			}

			logger.Warn(ctx, "Motion source closed, trigger polling continues")
		case <-ticker.C:
			if lost != nil {
				if m.trackingEnded() {
					return lost
				}

				continue
			}

			m.syncArmed(ctx)
			m.pollTrigger(ctx)
			m.reportTracking()
		}

		resetC = m.scheduleReset(resetTimer)
	}
}

// scheduleReset points the timer at the detector's pending deadline.
func (m *Monitor) scheduleReset(timer *time.Timer) <-chan time.Time {
	deadline, ok := m.detector.NextDeadline()
	if !ok {
		timer.Stop()

		return nil
	}

	timer.Reset(max(time.Until(deadline), 0))

	return timer.C
}

func (m *Monitor) handleSample(ctx context.Context, sample domain.MotionSample) {
	if !m.detector.State().Armed {
		return
	}

	if m.limiter.Allow() {
		if err := m.deps.Bridge.SaveMotionSnapshot(ctx, sample); err != nil {
			logger.WarnKV(ctx, "Failed to save motion snapshot", "error", err)
		}
	}

	event := m.detector.OnSample(sample)
	m.logEvent(ctx, event)

	if event.Kind != domain.EventTriggered {
		return
	}

	// Route through the bridge so the signal, last trigger time and
	// cooldown are shared with the background executor.
	if err := m.deps.Bridge.RaiseTrigger(ctx, sample.CapturedAt); err != nil {
		logger.ErrorKV(ctx, "Failed to raise trigger signal, dispatching directly", "error", err)
		m.dispatch(ctx, domain.SourceForeground, sample.CapturedAt)

		return
	}

	taken, err := m.deps.Bridge.TakeTrigger(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to take trigger signal, next poll retries", "error", err)

		return
	}

	if taken {
		m.dispatch(ctx, domain.SourceForeground, sample.CapturedAt)
	}
}

// pollTrigger dispatches a signal raised by the background executor.
func (m *Monitor) pollTrigger(ctx context.Context) {
	if !m.detector.State().Armed {
		return
	}

	taken, err := m.deps.Bridge.TakeTrigger(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to poll trigger signal", "error", err)

		return
	}

	if !taken {
		return
	}

	detectedAt := time.Now()

	if last, lastErr := m.deps.Bridge.LastTriggerAt(ctx); lastErr == nil && !last.IsZero() {
		detectedAt = last
		// Keep the cooldown started in the background context.
		m.detector.Suppress(last.Add(m.detector.Config().Cooldown))
	}

	m.dispatch(ctx, domain.SourceBackground, detectedAt)
}

// dispatch starts or extends tracking and hands the trigger to the consumer.
// A trigger during an active session extends that session's alert.
func (m *Monitor) dispatch(ctx context.Context, source domain.TriggerSource, detectedAt time.Time) {
	alertID := m.newAlertID()
	if session, ok := m.deps.Tracker.Active(); ok {
		alertID = session.AlertID
	}

	ctx = logger.WithFields(ctx, "alert_id", alertID, "source", string(source))

	reference, err := m.deps.References.TrackingReference(ctx, alertID)
	if err != nil {
		logger.WarnKV(ctx, "Failed to create tracking reference", "error", err)
	}

	if err = m.deps.Tracker.Start(ctx, m.settings.OwnerID, alertID, m.settings.TrackingDuration); err != nil {
		logger.ErrorKV(ctx, "Failed to start tracking", "error", err)
	}

	trigger := domain.Trigger{
		AlertID:           alertID,
		OwnerID:           m.settings.OwnerID,
		Source:            source,
		DetectedAt:        detectedAt,
		TrackingReference: reference,
	}

	if err = m.deps.Consumer.Consume(ctx, trigger); err != nil {
		logger.ErrorKV(ctx, "Trigger consumer failed", "error", err)
	}

	m.reportTracking()
}

// syncArmed applies the persisted armed flag, detector config and voice
// cooldown to the live detector.
func (m *Monitor) syncArmed(ctx context.Context) {
	armed, err := m.deps.Bridge.Armed(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read armed flag", "error", err)

		return
	}

	if !armed {
		m.armedAt = time.Time{}

		if m.detector.State().Armed {
			m.detector.Disarm()
			m.deps.Status.SetArmed(false)
			logger.Info(ctx, "Detector disarmed")
		}

		return
	}

	armedAt, err := m.deps.Bridge.ArmedAt(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read arm time", "error", err)

		return
	}

	// Disarmed and armed again between two polls: start from a fresh state.
	if m.detector.State().Armed && !armedAt.Equal(m.armedAt) {
		m.detector.Disarm()
		m.deps.Status.SetArmed(false)
		logger.InfoKV(ctx, "Detector re-armed since the last poll", "armed_at", armedAt)
	}

	cfg, ok, err := m.deps.Bridge.DetectorConfig(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read detector config", "error", err)

		return
	}

	if !ok {
		cfg = domain.DefaultDetectorConfig()
	}

	if err = m.applyConfig(ctx, cfg); err != nil {
		logger.ErrorKV(ctx, "Rejected detector config", "error", err)

		return
	}

	m.armedAt = armedAt

	voice, err := m.deps.Bridge.VoiceCooldown(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read voice cooldown", "error", err)

		return
	}

	m.detector.Suppress(voice)
}

func (m *Monitor) applyConfig(ctx context.Context, cfg domain.DetectorConfig) error {
	if m.detector.State().Armed {
		if cfg == m.detector.Config() {
			return nil
		}

		if err := m.detector.UpdateConfig(cfg); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Detector config updated", "config", cfg)

		return nil
	}

	lastTriggerAt, err := m.deps.Bridge.LastTriggerAt(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read last trigger time", "error", err)
	}

	if err = m.detector.ArmAt(cfg, lastTriggerAt); err != nil {
		return err
	}

	m.deps.Status.SetArmed(true)
	logger.InfoKV(ctx, "Detector armed",
		"threshold_delta", cfg.ThresholdDelta,
		"required_count", cfg.RequiredCount,
		"reset_window", cfg.ResetWindow.String(),
		"cooldown", cfg.Cooldown.String())

	return nil
}

// loseMotionAccess disarms everything after the sensor permission was revoked.
func (m *Monitor) loseMotionAccess(ctx context.Context, cause error) {
	m.detector.Disarm()
	m.deps.Status.SetArmed(false)

	if err := m.deps.Bridge.Disarm(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to clear armed flag", "error", err)
	}

	logger.ErrorKV(ctx, "Motion permission lost, detector disarmed", "error", cause)
}

// trackingEnded publishes the tracking status and reports whether no session
// is active.
func (m *Monitor) trackingEnded() bool {
	m.reportTracking()

	_, active := m.deps.Tracker.Active()

	return !active
}

func (m *Monitor) reportTracking() {
	_, active := m.deps.Tracker.Active()
	m.deps.Status.SetTracking(active)
}

func (m *Monitor) logEvent(ctx context.Context, event domain.Event) {
	switch event.Kind {
	case domain.EventShakeCounted:
		logger.DebugKV(ctx, "Shake counted", "count", event.Count)
	case domain.EventReset:
		logger.Debug(ctx, "Partial shake count reset")
	case domain.EventTriggered:
		logger.Warn(ctx, "Shake trigger fired")
	case domain.EventNone:
	}
}

type nopStatus struct{}

func (nopStatus) SetArmed(bool)    {}
func (nopStatus) SetTracking(bool) {}
