package gps

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// Open builds a receiver from a device string: "serial:<port>[@baud]" or a
// file path (a named pipe fed by gpsd's nmea output works too).
func Open(device string, defaultBaud int, maxFixAge time.Duration) (*Receiver, error) {
	target, isSerial := strings.CutPrefix(device, "serial:")
	if !isSerial {
		return NewReceiver(func() (io.ReadCloser, error) {
			return os.Open(device) //nolint:gosec // Device path comes from the operator's config.
		}, maxFixAge), nil
	}

	port, baudText, found := strings.Cut(target, "@")
	if port == "" {
		return nil, fmt.Errorf("gps device %q: port is empty", device)
	}

	baud := defaultBaud

	if found {
		var err error
		if baud, err = strconv.Atoi(baudText); err != nil || baud <= 0 {
			return nil, fmt.Errorf("gps device %q: invalid baud rate", device)
		}
	}

	r := NewSerialReceiver(port, baud)
	r.maxFixAge = maxFixAge

	if r.maxFixAge <= 0 {
		r.maxFixAge = DefaultMaxFixAge
	}

	return r, nil
}

// Disabled is a provider for devices without a GPS: it never has a fix and
// its watch stays silent.
type Disabled struct{}

// CurrentFix always fails with ErrNoFix.
func (Disabled) CurrentFix(context.Context) (domain.LocationSample, error) {
	return domain.LocationSample{}, ErrNoFix
}

// Watch blocks until ctx is done.
func (Disabled) Watch(ctx context.Context, _ func(domain.LocationSample)) error {
	<-ctx.Done()

	return nil
}
