package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
)

// Manager owns at most one tracking session per device.
type Manager struct {
	provider Provider
	sink     Sink
	sessions SessionStore
	opts     Options

	// opMu serialises Start, Extend, Stop, Suspend and Resume.
	opMu sync.Mutex
	// mu guards active and lastErr; strategy goroutines take it briefly.
	mu      sync.Mutex
	active  *run
	lastErr error
}

// run is one started session and the goroutines serving it.
type run struct {
	// session is guarded by Manager.mu.
	session domain.TrackingSession
	// unsaved is set when persisting the session failed; guarded by Manager.mu.
	unsaved bool

	cancel   context.CancelFunc
	extended chan struct{}
	done     chan struct{}
}

// NewManager wires a manager. opts may be nil.
func NewManager(provider Provider, sink Sink, sessions SessionStore, opts *Options) *Manager {
	return &Manager{
		provider: provider,
		sink:     sink,
		sessions: sessions,
		opts:     opts.withDefaults(),
	}
}

// Start begins tracking alertID for duration. The same alert already being
// tracked gets its window extended to max(end, now)+duration; a different
// alert replaces the current session after both of its strategies stopped.
func (m *Manager) Start(ctx context.Context, ownerID, alertID string, duration time.Duration) error {
	if alertID == "" {
		return errEmptyAlertID
	}

	if duration <= 0 {
		duration = m.opts.DefaultDuration
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current := m.active

	if current != nil && current.session.AlertID == alertID {
		m.mu.Unlock()

		if m.extend(ctx, current, duration) {
			return nil
		}

		// The window elapsed first: the run is clearing its record, so the
		// alert starts over once it is done.
		<-current.done

		current = nil
	} else {
		m.mu.Unlock()
	}

	if current != nil {
		logger.InfoKV(ctx, "Superseding tracking session",
			"previous_alert_id", current.session.AlertID, "alert_id", alertID)
		m.halt(current)
	}

	session := domain.TrackingSession{
		AlertID:     alertID,
		OwnerID:     ownerID,
		WindowEndAt: time.Now().Add(duration),
	}

	m.launch(ctx, session)

	return nil
}

// Extend pushes the active window to max(end, now)+d.
func (m *Manager) Extend(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("extend by %s: duration must be positive", d)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current := m.active
	m.mu.Unlock()

	if current == nil || !m.extend(ctx, current, d) {
		return ErrNoSession
	}

	return nil
}

// Stop halts both strategies and clears the persisted session.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current := m.active
	m.mu.Unlock()

	if current != nil {
		m.halt(current)
		logger.InfoKV(ctx, "Tracking session stopped", "alert_id", current.session.AlertID)
	}

	if err := m.sessions.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear tracking session: %w", err)
	}

	return nil
}

// Suspend halts both strategies but keeps the persisted session so Resume
// can continue the window after a restart.
func (m *Manager) Suspend() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current := m.active
	m.mu.Unlock()

	if current != nil {
		m.halt(current)
	}
}

// Resume reloads the persisted session and restarts both strategies for the
// remaining part of its window. An elapsed or missing session is a no-op.
func (m *Manager) Resume(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	running := m.active != nil
	m.mu.Unlock()

	if running {
		return nil
	}

	session, ok, err := m.sessions.Session(ctx)
	if err != nil {
		return fmt.Errorf("load tracking session: %w", err)
	}

	if !ok {
		return nil
	}

	remaining := session.Remaining(time.Now())
	if remaining <= 0 {
		logger.InfoKV(ctx, "Persisted tracking session already expired", "alert_id", session.AlertID)

		if err = m.sessions.ClearSession(ctx); err != nil {
			logger.WarnKV(ctx, "Failed to clear expired tracking session", "error", err)
		}

		return nil
	}

	logger.InfoKV(ctx, "Resuming tracking session", "alert_id", session.AlertID, "remaining", remaining.String())
	m.launch(ctx, session)

	return nil
}

// Active returns the current session.
func (m *Manager) Active() (domain.TrackingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.TrackingSession{}, false
	}

	return m.active.session, true
}

// Err returns the error that last ended a session on its own, such as
// domain.ErrPermissionLost. Starting a new session clears it.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastErr
}

// Done returns a channel closed when the current session's strategies have
// stopped, or nil when nothing is running.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}

	return m.active.done
}

// Wait blocks until the current session ends on its own or is halted, and
// returns the error that ended it, if any.
func (m *Manager) Wait() error {
	if done := m.Done(); done != nil {
		<-done
	}

	return m.Err()
}

// launch persists session and starts the supervisor and both strategies.
// Callers hold opMu and have made sure nothing is running.
func (m *Manager) launch(ctx context.Context, session domain.TrackingSession) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logger.WithKV(logger.WithName(runCtx, "tracking"), "alert_id", session.AlertID)

	r := &run{
		session:  session,
		cancel:   cancel,
		extended: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.active = r
	m.lastErr = nil
	m.mu.Unlock()

	m.persist(runCtx, r)

	var wg sync.WaitGroup

	wg.Go(func() { m.supervise(runCtx, r) })
	wg.Go(func() { m.poll(runCtx, r) })
	wg.Go(func() { m.watch(runCtx, r) })

	go func() {
		wg.Wait()
		close(r.done)
	}()

	logger.InfoKV(runCtx, "Tracking session started", "window_end_at", session.WindowEndAt)
}

// extend moves the window of r forward and wakes its supervisor. It returns
// false when r already ended.
func (m *Manager) extend(ctx context.Context, r *run, d time.Duration) bool {
	m.mu.Lock()

	if m.active != r {
		m.mu.Unlock()

		return false
	}

	base := r.session.WindowEndAt
	if now := time.Now(); now.After(base) {
		base = now
	}

	r.session.WindowEndAt = base.Add(d)
	end := r.session.WindowEndAt
	m.mu.Unlock()

	select {
	case r.extended <- struct{}{}:
	default:
	}

	m.persist(ctx, r)
	logger.InfoKV(ctx, "Tracking session extended", "alert_id", r.session.AlertID, "window_end_at", end)

	return true
}

// halt detaches r, cancels it and waits for its goroutines.
func (m *Manager) halt(r *run) {
	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	m.mu.Unlock()

	r.cancel()
	<-r.done
}

// finish ends r from inside one of its goroutines: on expiry (nil cause) or
// on a fatal strategy error. The persisted session is cleared only if r is
// still current. Expiry is re-checked under the lock so a concurrent extend
// is never lost; finish returns false when the window moved.
func (m *Manager) finish(ctx context.Context, r *run, cause error) bool {
	m.mu.Lock()

	if cause == nil && m.active == r && time.Now().Before(r.session.WindowEndAt) {
		m.mu.Unlock()

		return false
	}

	current := m.active == r
	if current {
		m.active = nil

		if cause != nil {
			m.lastErr = cause
		}
	}

	m.mu.Unlock()

	r.cancel()

	if !current {
		return true
	}

	if err := m.sessions.ClearSession(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to clear tracking session", "error", err)
	}

	return true
}

// persist saves the session record; failures are retried by the poller.
func (m *Manager) persist(ctx context.Context, r *run) {
	m.mu.Lock()
	session := r.session
	m.mu.Unlock()

	err := m.sessions.SaveSession(ctx, session)

	m.mu.Lock()
	r.unsaved = err != nil
	m.mu.Unlock()

	if err != nil {
		logger.WarnKV(ctx, "Failed to persist tracking session, will retry on next tick", "error", err)
	}
}

// windowEnd reads the current deadline of r.
func (m *Manager) windowEnd(r *run) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return r.session.WindowEndAt
}

// supervise ends the session when its window elapses.
func (m *Manager) supervise(ctx context.Context, r *run) {
	timer := time.NewTimer(time.Until(m.windowEnd(r)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.extended:
			timer.Reset(time.Until(m.windowEnd(r)))
		case <-timer.C:
			if remaining := time.Until(m.windowEnd(r)); remaining > 0 {
				timer.Reset(remaining)

				continue
			}

			if !m.finish(ctx, r, nil) {
				timer.Reset(time.Until(m.windowEnd(r)))

				continue
			}

			logger.Info(ctx, "Tracking window elapsed")

			return
		}
	}
}

// poll takes a fix immediately and then every poll interval.
func (m *Manager) poll(ctx context.Context, r *run) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		if !m.pollOnce(ctx, r) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce records one fix and retries pending persistence. It returns false
// when the session must end.
func (m *Manager) pollOnce(ctx context.Context, r *run) bool {
	m.mu.Lock()
	unsaved := r.unsaved
	m.mu.Unlock()

	if unsaved {
		m.persist(ctx, r)
	}

	sample, err := m.provider.CurrentFix(ctx)

	switch {
	case err == nil:
		m.record(ctx, r, sample, "poll")
	case ctx.Err() != nil:
		return false
	case errors.Is(err, domain.ErrPermissionLost):
		logger.ErrorKV(ctx, "Location permission lost, stopping tracking", "error", err)
		m.finish(ctx, r, err)

		return false
	default:
		logger.WarnKV(ctx, "Location fix failed, skipping", "error", err)
	}

	return true
}

// watch keeps the reactive strategy running, re-opening it after failures.
func (m *Manager) watch(ctx context.Context, r *run) {
	for {
		err := m.provider.Watch(ctx, func(sample domain.LocationSample) {
			m.record(ctx, r, sample, "watch")
		})

		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, domain.ErrPermissionLost) {
			logger.ErrorKV(ctx, "Location permission lost, stopping tracking", "error", err)
			m.finish(ctx, r, err)

			return
		}

		logger.WarnKV(ctx, "Location watch ended, restarting", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRestartDelay):
		}
	}
}

// record appends a sample; sink failures are logged and skipped.
func (m *Manager) record(ctx context.Context, r *run, sample domain.LocationSample, strategy string) {
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	alertID := r.session.AlertID
	m.mu.Unlock()

	if err := m.sink.Append(ctx, alertID, sample); err != nil {
		logger.WarnKV(ctx, "Failed to append location sample", "strategy", strategy, "error", err)

		return
	}

	logger.DebugKV(ctx, "Location sample recorded", "strategy", strategy, "captured_at", sample.CapturedAt)
}
