package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

var errTestIO = errors.New("io failure")

// fakeProvider reports a fix at the current (bubble) time and records watch lifecycles.
type fakeProvider struct {
	mu sync.Mutex
	// fixErrs are returned by CurrentFix, one per call, before succeeding.
	fixErrs []error
	// watchErr is returned by Watch right away when set.
	watchErr error
	// events logs "watch-start" and "watch-stop" in order.
	events []string
	// watching counts open watches; maxWatching is its high-water mark.
	watching    int
	maxWatching int
	// updates feeds position changes to open watches.
	updates chan domain.LocationSample
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{updates: make(chan domain.LocationSample)}
}

// CurrentFix returns a queued error or a fix stamped with time.Now.
func (p *fakeProvider) CurrentFix(ctx context.Context) (domain.LocationSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.fixErrs) > 0 {
		err := p.fixErrs[0]
		p.fixErrs = p.fixErrs[1:]

		return domain.LocationSample{}, err
	}

	return domain.LocationSample{Lat: 55.75, Lng: 37.61, CapturedAt: time.Now()}, ctx.Err()
}

// Watch forwards updates until ctx is done.
func (p *fakeProvider) Watch(ctx context.Context, onFix func(domain.LocationSample)) error {
	p.mu.Lock()
	if p.watchErr != nil {
		err := p.watchErr
		p.mu.Unlock()

		return err
	}

	p.watching++
	p.maxWatching = max(p.maxWatching, p.watching)
	p.events = append(p.events, "watch-start")
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.watching--
		p.events = append(p.events, "watch-stop")
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-p.updates:
			onFix(s)
		}
	}
}

func (p *fakeProvider) snapshot() (events []string, maxWatching int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.events...), p.maxWatching
}

// recordedSample pairs a sample with the alert it was appended for.
type recordedSample struct {
	alertID string
	sample  domain.LocationSample
}

// memorySink keeps every appended sample, duplicates included.
type memorySink struct {
	mu      sync.Mutex
	samples []recordedSample
	// failures makes the next Append calls fail.
	failures int
}

// Append records the sample unless a failure is queued.
func (s *memorySink) Append(_ context.Context, alertID string, sample domain.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--

		return errTestIO
	}

	s.samples = append(s.samples, recordedSample{alertID: alertID, sample: sample})

	return nil
}

func (s *memorySink) count(alertID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, r := range s.samples {
		if r.alertID == alertID {
			n++
		}
	}

	return n
}

func (s *memorySink) all() []recordedSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]recordedSample(nil), s.samples...)
}

// memorySessions is a SessionStore with injectable save failures.
type memorySessions struct {
	mu        sync.Mutex
	session   *domain.TrackingSession
	saveFails int
	saves     int
}

// SaveSession stores s unless a failure is queued.
func (m *memorySessions) SaveSession(_ context.Context, s domain.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++

	if m.saveFails > 0 {
		m.saveFails--

		return errTestIO
	}

	m.session = &s

	return nil
}

// Session returns the stored session.
func (m *memorySessions) Session(context.Context) (domain.TrackingSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return domain.TrackingSession{}, false, nil
	}

	return *m.session, true, nil
}

// ClearSession drops the stored session.
func (m *memorySessions) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil

	return nil
}

func (m *memorySessions) stored() (domain.TrackingSession, bool) {
	s, ok, _ := m.Session(context.Background())

	return s, ok
}
