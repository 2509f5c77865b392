package monitor

import (
	"context"
	"sync"
	"time"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// sampleSpacing keeps test samples well above the detector debounce.
const sampleSpacing = 200 * time.Millisecond

// chanSource is a motion source fed by the test.
type chanSource struct {
	samples chan domain.MotionSample
	// err is returned once samples is closed.
	err error
}

func newChanSource() *chanSource {
	return &chanSource{samples: make(chan domain.MotionSample)}
}

func (s *chanSource) Run(ctx context.Context, onSample func(domain.MotionSample)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sample, ok := <-s.samples:
			if !ok {
				return s.err
			}

			onSample(sample)
		}
	}
}

// send delivers a reading with X=x stamped now, then waits sampleSpacing.
func (s *chanSource) send(x ...float64) {
	for _, v := range x {
		s.samples <- domain.MotionSample{
			Vector:     domain.Vector{X: v},
			CapturedAt: time.Now(),
		}

		time.Sleep(sampleSpacing)
	}
}

type startCall struct {
	ownerID  string
	alertID  string
	duration time.Duration
}

type fakeTracker struct {
	mu        sync.Mutex
	starts    []startCall
	session   domain.TrackingSession
	active    bool
	resumed   int
	suspended int
}

func (f *fakeTracker) Start(_ context.Context, ownerID, alertID string, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.starts = append(f.starts, startCall{ownerID: ownerID, alertID: alertID, duration: d})
	f.session = domain.TrackingSession{AlertID: alertID, OwnerID: ownerID, WindowEndAt: time.Now().Add(d)}
	f.active = true

	return nil
}

func (f *fakeTracker) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resumed++

	return nil
}

func (f *fakeTracker) Suspend() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.suspended++
	f.active = false
}

// Active reports the session until its window elapses.
func (f *fakeTracker) Active() (domain.TrackingSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.session, f.active && time.Now().Before(f.session.WindowEndAt)
}

func (f *fakeTracker) suspendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.suspended
}

func (f *fakeTracker) resumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.resumed
}

func (f *fakeTracker) calls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]startCall(nil), f.starts...)
}

type fakeReferences struct{}

func (fakeReferences) TrackingReference(_ context.Context, alertID string) (string, error) {
	return "ref-" + alertID, nil
}

type recordingConsumer struct {
	mu       sync.Mutex
	triggers []domain.Trigger
}

func (c *recordingConsumer) Consume(_ context.Context, trigger domain.Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.triggers = append(c.triggers, trigger)

	return nil
}

func (c *recordingConsumer) all() []domain.Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]domain.Trigger(nil), c.triggers...)
}

type fakeStatus struct {
	mu       sync.Mutex
	armed    bool
	tracking bool
}

func (s *fakeStatus) SetArmed(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = v
}

func (s *fakeStatus) SetTracking(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracking = v
}

func (s *fakeStatus) get() (armed, tracking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.armed, s.tracking
}
