package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/oshokin/shake-alarm/internal/config"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/repository/location"
)

// TrackOptions select the tracking reference to print.
type TrackOptions struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// Reference is the opaque value handed to the trigger consumer.
	Reference string
}

// Track resolves a tracking reference and writes the recorded positions of
// its alert to w, oldest first.
func Track(ctx context.Context, opts *TrackOptions, w io.Writer) error {
	ctx = logger.WithName(ctx, "shake-monitor/track")

	settings, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	sink, err := location.Open(settings.SinkPath)
	if err != nil {
		return fmt.Errorf("open location sink: %w", err)
	}

	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close location sink", "error", closeErr)
		}
	}()

	alertID, err := sink.ResolveReference(ctx, opts.Reference)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", opts.Reference, err)
	}

	samples, err := sink.Samples(ctx, alertID)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Resolved tracking reference", "alert_id", alertID, "samples", len(samples))

	if _, err = fmt.Fprintf(w, "alert %s: %d positions\n", alertID, len(samples)); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}

	for _, s := range samples {
		_, err = fmt.Fprintf(w, "%s\t%.6f\t%.6f\taccuracy=%.1fm\tspeed=%.1fm/s\theading=%.0f\taltitude=%.1fm\n",
			s.CapturedAt.UTC().Format(time.RFC3339), s.Lat, s.Lng, s.Accuracy, s.Speed, s.Heading, s.Altitude)
		if err != nil {
			return fmt.Errorf("write positions: %w", err)
		}
	}

	return nil
}
