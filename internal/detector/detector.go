package detector

import (
	"errors"
	"time"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// MinSampleSpacing caps the processing rate; closer samples are dropped so
// oversampling cannot inflate the count.
const MinSampleSpacing = 100 * time.Millisecond

// ErrNotArmed is returned by UpdateConfig on a disarmed detector.
var ErrNotArmed = errors.New("detector is not armed")

// State is a snapshot of the detector internals.
type State struct {
	// AccumulatedCount is the number of shakes counted in the current window.
	AccumulatedCount uint32
	// LastSampleVector is the reading of the last processed sample.
	LastSampleVector domain.Vector
	// LastTriggerAt is the capture time of the sample that last fired.
	LastTriggerAt time.Time
	// Armed reports whether samples are being processed.
	Armed bool
}

// Detector is the debounce/accumulate/cooldown engine. It is not safe for
// concurrent use; exactly one execution context owns it at a time.
type Detector struct {
	cfg   domain.DetectorConfig
	state State

	// hasBaseline is false until the first sample after arming is seen.
	hasBaseline bool
	// lastProcessedAt is the capture time of the last processed sample.
	lastProcessedAt time.Time
	// resetDeadline is when a partial count expires; zero when count is zero.
	resetDeadline time.Time
	// suppressedUntil is an external cooldown (voice alert) that also blocks triggers.
	suppressedUntil time.Time
}

// New returns a disarmed detector.
func New() *Detector {
	return new(Detector)
}

// Arm validates cfg and starts a fresh state. Rejected configs leave the
// detector disarmed.
func (d *Detector) Arm(cfg domain.DetectorConfig) error {
	if err := cfg.Validate(); err != nil {
		d.Disarm()

		return err
	}

	d.clear()
	d.cfg = cfg
	d.state.Armed = true

	return nil
}

// ArmAt arms the detector and restores the time of the last trigger so a
// cooldown started in another execution context keeps applying.
func (d *Detector) ArmAt(cfg domain.DetectorConfig, lastTriggerAt time.Time) error {
	if err := d.Arm(cfg); err != nil {
		return err
	}

	d.state.LastTriggerAt = lastTriggerAt

	return nil
}

// Disarm stops processing and drops every pending deadline.
func (d *Detector) Disarm() {
	d.clear()
}

// UpdateConfig swaps the configuration of an armed detector. The partial
// count survives and is compared against the new target on the next sample.
func (d *Detector) UpdateConfig(cfg domain.DetectorConfig) error {
	if !d.state.Armed {
		return ErrNotArmed
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	d.cfg = cfg

	return nil
}

// Suppress blocks triggers until the given time in addition to the cooldown.
// Suppression windows only grow.
func (d *Detector) Suppress(until time.Time) {
	if until.After(d.suppressedUntil) {
		d.suppressedUntil = until
	}
}

// Config returns the active configuration.
func (d *Detector) Config() domain.DetectorConfig {
	return d.cfg
}

// State returns a copy of the detector state.
func (d *Detector) State() State {
	return d.state
}

// OnSample feeds one accelerometer reading into the state machine.
func (d *Detector) OnSample(sample domain.MotionSample) domain.Event {
	if !d.state.Armed {
		return domain.NoEvent()
	}

	now := sample.CapturedAt

	if !d.hasBaseline {
		d.hasBaseline = true
		d.lastProcessedAt = now
		d.state.LastSampleVector = sample.Vector

		return domain.NoEvent()
	}

	if now.Sub(d.lastProcessedAt) < MinSampleSpacing {
		return domain.NoEvent()
	}

	expired := d.expire(now)

	delta := sample.L1(d.state.LastSampleVector)
	d.lastProcessedAt = now
	d.state.LastSampleVector = sample.Vector

	if d.suppressed(now) {
		return eventOrReset(expired)
	}

	if delta > d.cfg.ThresholdDelta {
		d.state.AccumulatedCount++
		d.resetDeadline = now.Add(d.cfg.ResetWindow)
	} else if d.state.AccumulatedCount < d.cfg.RequiredCount {
		// Below threshold: only a lowered target can still fire on this sample.
		return eventOrReset(expired)
	}

	if d.state.AccumulatedCount >= d.cfg.RequiredCount {
		d.fire(now)

		return domain.Triggered()
	}

	return domain.ShakeCounted(d.state.AccumulatedCount)
}

// Expire checks the reset-window deadline without a sample. Hosts call it
// from a timer so a Reset is reported even when motion stops entirely.
func (d *Detector) Expire(now time.Time) domain.Event {
	if !d.state.Armed {
		return domain.NoEvent()
	}

	return eventOrReset(d.expire(now))
}

// NextDeadline returns the pending reset deadline, if any.
func (d *Detector) NextDeadline() (time.Time, bool) {
	if d.state.AccumulatedCount == 0 || d.resetDeadline.IsZero() {
		return time.Time{}, false
	}

	return d.resetDeadline, true
}

// expire zeroes an elapsed partial count and reports whether it did.
func (d *Detector) expire(now time.Time) bool {
	if d.state.AccumulatedCount == 0 || now.Before(d.resetDeadline) {
		return false
	}

	d.state.AccumulatedCount = 0
	d.resetDeadline = time.Time{}

	return true
}

// suppressed reports whether the cooldown or an external suppression is active.
func (d *Detector) suppressed(now time.Time) bool {
	if !d.state.LastTriggerAt.IsZero() && now.Sub(d.state.LastTriggerAt) < d.cfg.Cooldown {
		return true
	}

	return now.Before(d.suppressedUntil)
}

func (d *Detector) fire(now time.Time) {
	d.state.LastTriggerAt = now
	d.state.AccumulatedCount = 0
	d.resetDeadline = time.Time{}
}

func (d *Detector) clear() {
	d.cfg = domain.DetectorConfig{}
	d.state = State{}
	d.hasBaseline = false
	d.lastProcessedAt = time.Time{}
	d.resetDeadline = time.Time{}
	d.suppressedUntil = time.Time{}
}

func eventOrReset(expired bool) domain.Event {
	if expired {
		return domain.Reset()
	}

	return domain.NoEvent()
}
