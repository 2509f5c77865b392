package tracking

import (
	"context"
	"errors"
	"time"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

const (
	// DefaultPollInterval is the deterministic sampling floor.
	DefaultPollInterval = 30 * time.Second
	// DefaultDuration is the tracking window used when none is given.
	DefaultDuration = 60 * time.Minute
	// watchRestartDelay spaces out attempts to re-open a failed watch.
	watchRestartDelay = 5 * time.Second
)

var (
	// ErrNoSession is returned by Extend when nothing is being tracked.
	ErrNoSession = errors.New("no active tracking session")
	// errEmptyAlertID is returned when Start is called without an alert.
	errEmptyAlertID = errors.New("alert id must be provided")
)

// Provider is the platform location service.
type Provider interface {
	// CurrentFix returns the current position.
	CurrentFix(ctx context.Context) (domain.LocationSample, error)
	// Watch calls onFix for every reported position change until ctx is done
	// or the watch fails. Timestamps may repeat or go backwards.
	Watch(ctx context.Context, onFix func(domain.LocationSample)) error
}

// Sink is the append-only, duplicate-tolerant location log.
type Sink interface {
	Append(ctx context.Context, alertID string, sample domain.LocationSample) error
}

// SessionStore persists the session record across restarts.
type SessionStore interface {
	SaveSession(ctx context.Context, s domain.TrackingSession) error
	Session(ctx context.Context) (domain.TrackingSession, bool, error)
	ClearSession(ctx context.Context) error
}

// Options tunes the manager.
type Options struct {
	// PollInterval is the interval strategy period.
	PollInterval time.Duration
	// DefaultDuration is used by Start when duration is not positive.
	DefaultDuration time.Duration
}

func (o *Options) withDefaults() Options {
	var res Options
	if o != nil {
		res = *o
	}

	if res.PollInterval <= 0 {
		res.PollInterval = DefaultPollInterval
	}

	if res.DefaultDuration <= 0 {
		res.DefaultDuration = DefaultDuration
	}

	return res
}
