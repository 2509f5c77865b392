package monitor

import (
	"context"
	"fmt"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/shake-alarm/internal/bridge"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
)

type harness struct {
	bridge   *bridge.Bridge
	monitor  *Monitor
	tracker  *fakeTracker
	consumer *recordingConsumer
	status   *fakeStatus
	source   *chanSource
}

func newHarness() *harness {
	h := &harness{
		bridge:   bridge.New(kv.NewMemoryStore()),
		tracker:  new(fakeTracker),
		consumer: new(recordingConsumer),
		status:   new(fakeStatus),
		source:   newChanSource(),
	}

	h.monitor = New(Deps{
		Bridge:     h.bridge,
		Tracker:    h.tracker,
		References: fakeReferences{},
		Consumer:   h.consumer,
		Status:     h.status,
	}, Settings{
		OwnerID:          "owner",
		TrackingDuration: time.Hour,
	})

	var next int

	h.monitor.newAlertID = func() string {
		next++

		return fmt.Sprintf("alert-%d", next)
	}

	return h
}

// start runs the monitor in the bubble and returns a stop function that
// cancels it and returns Run's error.
func (h *harness) start(t *testing.T) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- h.monitor.Run(ctx, h.source) }()

	synctest.Wait()

	return func() error {
		cancel()

		return <-done
	}
}

// TestMonitor_ForegroundTrigger fires on three shakes and dispatches once.
func TestMonitor_ForegroundTrigger(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		stop := h.start(t)

		armed, _ := h.status.get()
		require.True(t, armed)
		require.Equal(t, 1, h.tracker.resumeCount())

		// Baseline plus three deltas of 20 against a threshold of 15.
		h.source.send(0, 20, 0, 20)
		synctest.Wait()

		triggers := h.consumer.all()
		require.Len(t, triggers, 1)
		require.Equal(t, "alert-1", triggers[0].AlertID)
		require.Equal(t, "owner", triggers[0].OwnerID)
		require.Equal(t, domain.SourceForeground, triggers[0].Source)
		require.Equal(t, "ref-alert-1", triggers[0].TrackingReference)

		require.Equal(t, []startCall{{ownerID: "owner", alertID: "alert-1", duration: time.Hour}}, h.tracker.calls())

		// The signal was consumed and the shared trigger time recorded.
		taken, err := h.bridge.TakeTrigger(ctx)
		require.NoError(t, err)
		require.False(t, taken)

		last, err := h.bridge.LastTriggerAt(ctx)
		require.NoError(t, err)
		require.True(t, last.Equal(triggers[0].DetectedAt))

		_, ok, err := h.bridge.MotionSnapshot(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		_, tracking := h.status.get()
		require.True(t, tracking)

		require.NoError(t, stop())
		require.Equal(t, 1, h.tracker.suspendCount())
	})
}

// TestMonitor_BackgroundSignal dispatches a signal raised while the monitor
// was not running and honours the cooldown it started.
func TestMonitor_BackgroundSignal(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		raisedAt := time.Now().Add(-10 * time.Second)

		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))
		require.NoError(t, h.bridge.RaiseTrigger(ctx, raisedAt))

		stop := h.start(t)

		time.Sleep(DefaultTriggerPollInterval)
		synctest.Wait()

		triggers := h.consumer.all()
		require.Len(t, triggers, 1)
		require.Equal(t, domain.SourceBackground, triggers[0].Source)
		require.True(t, raisedAt.Equal(triggers[0].DetectedAt))

		// Still inside the two minute cooldown.
		h.source.send(0, 20, 0, 20, 0, 20)
		synctest.Wait()
		require.Len(t, h.consumer.all(), 1)

		require.NoError(t, stop())
	})
}

// TestMonitor_DisarmedIgnoresEverything leaves samples and the signal alone.
func TestMonitor_DisarmedIgnoresEverything(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.RaiseTrigger(ctx, time.Now()))

		stop := h.start(t)

		h.source.send(0, 20, 0, 20)
		time.Sleep(DefaultTriggerPollInterval)
		synctest.Wait()

		require.Empty(t, h.consumer.all())

		taken, err := h.bridge.TakeTrigger(ctx)
		require.NoError(t, err)
		require.True(t, taken)

		armed, _ := h.status.get()
		require.False(t, armed)

		require.NoError(t, stop())
	})
}

// TestMonitor_FollowsArmedFlag arms and disarms on the poll tick.
func TestMonitor_FollowsArmedFlag(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()

		stop := h.start(t)

		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))
		time.Sleep(DefaultTriggerPollInterval)
		synctest.Wait()

		armed, _ := h.status.get()
		require.True(t, armed)

		h.source.send(0, 20, 0, 20)
		synctest.Wait()
		require.Len(t, h.consumer.all(), 1)

		require.NoError(t, h.bridge.Disarm(ctx))
		time.Sleep(DefaultTriggerPollInterval)
		synctest.Wait()

		armed, _ = h.status.get()
		require.False(t, armed)

		require.NoError(t, stop())
	})
}

// TestMonitor_ResetWindow drops a partial count after the window passes.
func TestMonitor_ResetWindow(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		stop := h.start(t)

		h.source.send(0, 20, 0)
		time.Sleep(4 * time.Second)

		// Without the reset this would be the third shake.
		h.source.send(20)
		synctest.Wait()
		require.Empty(t, h.consumer.all())

		h.source.send(0, 20)
		synctest.Wait()
		require.Len(t, h.consumer.all(), 1)

		require.NoError(t, stop())
	})
}

// TestMonitor_ActiveSessionKeepsAlert reuses the running alert id.
func TestMonitor_ActiveSessionKeepsAlert(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		h.tracker.session = domain.TrackingSession{AlertID: "existing", OwnerID: "owner", WindowEndAt: time.Now().Add(time.Hour)}
		h.tracker.active = true

		stop := h.start(t)

		h.source.send(0, 20, 0, 20)
		synctest.Wait()

		triggers := h.consumer.all()
		require.Len(t, triggers, 1)
		require.Equal(t, "existing", triggers[0].AlertID)
		require.Equal(t, "existing", h.tracker.calls()[0].alertID)

		require.NoError(t, stop())
	})
}

// TestMonitor_VoiceCooldownSuppresses blocks triggers while muted.
func TestMonitor_VoiceCooldownSuppresses(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))
		require.NoError(t, h.bridge.SetVoiceCooldown(ctx, time.Now().Add(time.Minute)))

		stop := h.start(t)

		h.source.send(0, 20, 0, 20, 0, 20)
		synctest.Wait()
		require.Empty(t, h.consumer.all())

		require.NoError(t, stop())
	})
}

// TestMonitor_PermissionLost disarms and returns the domain error.
func TestMonitor_PermissionLost(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		h.source.err = fmt.Errorf("read accelerometer: %w", domain.ErrPermissionLost)

		done := make(chan error, 1)

		go func() { done <- h.monitor.Run(ctx, h.source) }()

		synctest.Wait()
		close(h.source.samples)

		err := <-done
		require.ErrorIs(t, err, domain.ErrPermissionLost)

		armed, err := h.bridge.Armed(ctx)
		require.NoError(t, err)
		require.False(t, armed)

		armedStatus, _ := h.status.get()
		require.False(t, armedStatus)
		require.Equal(t, 1, h.tracker.suspendCount())
	})
}

// TestMonitor_TrackingOutlivesPermissionLoss keeps serving an active session
// after the motion sensor is gone and returns once the window elapses.
func TestMonitor_TrackingOutlivesPermissionLoss(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		h.tracker.session = domain.TrackingSession{AlertID: "existing", OwnerID: "owner", WindowEndAt: time.Now().Add(10 * time.Second)}
		h.tracker.active = true
		h.source.err = fmt.Errorf("read accelerometer: %w", domain.ErrPermissionLost)

		done := make(chan error, 1)

		go func() { done <- h.monitor.Run(ctx, h.source) }()

		synctest.Wait()

		start := time.Now()

		close(h.source.samples)
		synctest.Wait()

		// Disarmed right away, tracking untouched.
		armed, err := h.bridge.Armed(ctx)
		require.NoError(t, err)
		require.False(t, armed)

		armedStatus, trackingStatus := h.status.get()
		require.False(t, armedStatus)
		require.True(t, trackingStatus)
		require.Zero(t, h.tracker.suspendCount())

		select {
		case err = <-done:
			require.FailNow(t, "monitor returned while a session was active", "error: %v", err)
		default:
		}

		err = <-done
		require.ErrorIs(t, err, domain.ErrPermissionLost)
		require.GreaterOrEqual(t, time.Since(start), 10*time.Second)

		_, trackingStatus = h.status.get()
		require.False(t, trackingStatus)
	})
}

// TestMonitor_RearmBetweenPollsResetsState drops the partial count when the
// device was disarmed and armed again inside one poll interval.
func TestMonitor_RearmBetweenPollsResetsState(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness()
		ctx := t.Context()
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		stop := h.start(t)

		// Baseline and two counted shakes.
		h.source.send(0, 20, 0)

		require.NoError(t, h.bridge.Disarm(ctx))
		require.NoError(t, h.bridge.Arm(ctx, domain.DefaultDetectorConfig()))

		time.Sleep(DefaultTriggerPollInterval)
		synctest.Wait()

		// Still inside the reset window: this would be the third shake
		// without the re-arm, now it is the new baseline.
		h.source.send(20)
		synctest.Wait()
		require.Empty(t, h.consumer.all())

		h.source.send(0, 20, 0)
		synctest.Wait()
		require.Len(t, h.consumer.all(), 1)

		require.NoError(t, stop())
	})
}
