package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
)

// Source delivers motion samples until ctx is done or the device fails.
type Source interface {
	// Run blocks, calling onSample for every reading. Losing access to the
	// device is reported as domain.ErrPermissionLost.
	Run(ctx context.Context, onSample func(domain.MotionSample)) error
}

// DefaultBaudRate is used for serial accelerometers when none is configured.
const DefaultBaudRate = 115200

var errMalformedLine = errors.New("malformed sample line")

// LineSource parses samples from a line-oriented stream.
type LineSource struct {
	// open returns the stream; it is called once per Run.
	open func() (io.ReadCloser, error)
	// now stamps lines that carry no capture time.
	now func() time.Time
}

// NewLineSource reads samples from the streams returned by open.
func NewLineSource(open func() (io.ReadCloser, error)) *LineSource {
	return &LineSource{open: open, now: time.Now}
}

// Open builds a source from a device string: "stdin" or "-", "serial:<port>"
// (optionally "@<baud>"), or a file path.
func Open(device string) (*LineSource, error) {
	switch {
	case device == "" || device == "-" || device == "stdin":
		return NewLineSource(func() (io.ReadCloser, error) {
			return io.NopCloser(os.Stdin), nil
		}), nil
	case strings.HasPrefix(device, "serial:"):
		port, baud, err := ParseSerialDevice(strings.TrimPrefix(device, "serial:"))
		if err != nil {
			return nil, err
		}

		return NewLineSource(func() (io.ReadCloser, error) {
			return OpenSerial(port, baud)
		}), nil
	default:
		return NewLineSource(func() (io.ReadCloser, error) {
			return os.Open(device) //nolint:gosec // Device path comes from the operator's config.
		}), nil
	}
}

// Run reads until EOF, ctx cancellation or a read error. Cancellation returns
// promptly even for streams whose Close does not interrupt a pending read,
// such as stdin; the reader goroutine then exits with the next read.
func (s *LineSource) Run(ctx context.Context, onSample func(domain.MotionSample)) error {
	stream, err := s.open()
	if err != nil {
		return classify(fmt.Errorf("open motion source: %w", err))
	}

	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})

	defer func() {
		if stop() {
			_ = stream.Close()
		}
	}()

	lines := make(chan string)
	readDone := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readDone <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			s.handleLine(ctx, line, onSample)
		case err = <-readDone:
			if ctx.Err() != nil {
				return nil
			}

			if err != nil {
				return classify(fmt.Errorf("read motion source: %w", err))
			}

			return nil
		}
	}
}

func (s *LineSource) handleLine(ctx context.Context, line string, onSample func(domain.MotionSample)) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	sample, err := ParseLine(line, s.now)
	if err != nil {
		logger.DebugKV(ctx, "Skipping motion line", "line", line, "error", err)

		return
	}

	onSample(sample)
}

// ParseLine decodes "x,y,z[,unix_ms]".
func ParseLine(line string, now func() time.Time) (domain.MotionSample, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})

	if len(fields) != 3 && len(fields) != 4 {
		return domain.MotionSample{}, fmt.Errorf("%w: want 3 or 4 fields, got %d", errMalformedLine, len(fields))
	}

	var values [3]float64

	for i := range values {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return domain.MotionSample{}, fmt.Errorf("%w: axis %d: %w", errMalformedLine, i, err)
		}

		values[i] = v
	}

	capturedAt := now()

	if len(fields) == 4 {
		ms, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return domain.MotionSample{}, fmt.Errorf("%w: timestamp: %w", errMalformedLine, err)
		}

		capturedAt = time.UnixMilli(ms)
	}

	return domain.MotionSample{
		Vector:     domain.Vector{X: values[0], Y: values[1], Z: values[2]},
		CapturedAt: capturedAt,
	}, nil
}

// ParseSerialDevice splits "port[@baud]".
func ParseSerialDevice(device string) (string, int, error) {
	port, baudText, found := strings.Cut(device, "@")
	if port == "" {
		return "", 0, fmt.Errorf("serial device %q: port is empty", device)
	}

	if !found {
		return port, DefaultBaudRate, nil
	}

	baud, err := strconv.Atoi(baudText)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("serial device %q: invalid baud rate", device)
	}

	return port, baud, nil
}

// OpenSerial opens a serial port in 8N1 mode.
func OpenSerial(port string, baud int) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}

	return p, nil
}

// classify maps access failures to domain.ErrPermissionLost.
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
