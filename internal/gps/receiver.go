package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.bug.st/serial"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
)

// DefaultMaxFixAge bounds how old the latest fix may be for CurrentFix.
const DefaultMaxFixAge = 10 * time.Second

var (
	// ErrNoFix is returned by CurrentFix when no recent fix is available.
	ErrNoFix = errors.New("no recent location fix")
	// ErrStopped is returned once the receiver stream has ended.
	ErrStopped = errors.New("gps receiver stopped")
)

// Receiver decodes an NMEA stream and serves fixes to the tracking manager.
type Receiver struct {
	open      func() (io.ReadCloser, error)
	maxFixAge time.Duration

	mu       sync.Mutex
	latest   domain.LocationSample
	hasFix   bool
	receipt  time.Time
	gga      *GGA
	watchers map[chan domain.LocationSample]struct{}
	stopped  chan struct{}
	err      error
}

// NewReceiver reads NMEA lines from the streams returned by open.
func NewReceiver(open func() (io.ReadCloser, error), maxFixAge time.Duration) *Receiver {
	if maxFixAge <= 0 {
		maxFixAge = DefaultMaxFixAge
	}

	return &Receiver{
		open:      open,
		maxFixAge: maxFixAge,
		watchers:  make(map[chan domain.LocationSample]struct{}),
		stopped:   make(chan struct{}),
	}
}

// NewSerialReceiver reads a GPS attached to a serial port.
func NewSerialReceiver(port string, baud int) *Receiver {
	return NewReceiver(func() (io.ReadCloser, error) {
		p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open gps port %s: %w", port, err)
		}

		return p, nil
	}, DefaultMaxFixAge)
}

// Run consumes the stream until ctx is done or the stream fails. It must be
// called exactly once; watchers are released when it returns.
func (r *Receiver) Run(ctx context.Context) error {
	err := r.run(ctx)

	r.mu.Lock()
	r.err = err
	close(r.stopped)
	r.mu.Unlock()

	return err
}

func (r *Receiver) run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "gps")

	stream, err := r.open()
	if err != nil {
		return classify(err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})

	defer func() {
		if stop() {
			_ = stream.Close()
		}
	}()

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		sentence, parseErr := Parse(scanner.Text())
		if parseErr != nil {
			if !errors.Is(parseErr, errUnsupported) {
				logger.DebugKV(ctx, "Skipping NMEA line", "error", parseErr)
			}

			continue
		}

		r.apply(sentence)
	}

	if ctx.Err() != nil {
		return nil
	}

	if err = scanner.Err(); err != nil {
		return classify(fmt.Errorf("read gps stream: %w", err))
	}

	return fmt.Errorf("%w: stream ended", ErrStopped)
}

func (r *Receiver) apply(s Sentence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.GGA != nil {
		r.gga = s.GGA

		return
	}

	if s.RMC == nil || !s.RMC.Valid {
		return
	}

	fix := domain.LocationSample{
		Lat:        s.RMC.Lat,
		Lng:        s.RMC.Lng,
		Speed:      s.RMC.Speed,
		Heading:    s.RMC.Heading,
		CapturedAt: s.RMC.Time,
	}

	if r.gga != nil && r.gga.Quality > 0 {
		fix.Altitude = r.gga.Altitude
		fix.Accuracy = r.gga.HDOP * metersPerHDOP
	}

	moved := !r.hasFix || fix.Lat != r.latest.Lat || fix.Lng != r.latest.Lng

	r.latest = fix
	r.hasFix = true
	r.receipt = time.Now()

	if !moved {
		return
	}

	for ch := range r.watchers {
		select {
		case ch <- fix:
		default:
		}
	}
}

// CurrentFix returns the latest fix if it was received recently.
func (r *Receiver) CurrentFix(ctx context.Context) (domain.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return domain.LocationSample{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isStopped() {
		return domain.LocationSample{}, r.stopErr()
	}

	if !r.hasFix || time.Since(r.receipt) > r.maxFixAge {
		return domain.LocationSample{}, ErrNoFix
	}

	return r.latest, nil
}

// Watch calls onFix for each position change until ctx is done or the
// receiver stops.
func (r *Receiver) Watch(ctx context.Context, onFix func(domain.LocationSample)) error {
	ch := make(chan domain.LocationSample, 1)

	r.mu.Lock()
	if r.isStopped() {
		err := r.stopErr()
		r.mu.Unlock()

		return err
	}

	r.watchers[ch] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.watchers, ch)
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopped:
			r.mu.Lock()
			err := r.stopErr()
			r.mu.Unlock()

			return err
		case fix := <-ch:
			onFix(fix)
		}
	}
}

// Caller holds r.mu.
func (r *Receiver) isStopped() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

// Caller holds r.mu.
func (r *Receiver) stopErr() error {
	if r.err != nil {
		return r.err
	}

	return ErrStopped
}

func classify(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", domain.ErrPermissionLost, err)
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PermissionDenied, serial.PortNotFound, serial.PortClosed:
			return fmt.Errorf("%w: %w", domain.ErrPermissionLost, err)
		default:
		}
	}

	return err
}
