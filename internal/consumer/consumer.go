package consumer

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
)

// Consumer receives trigger events.
type Consumer interface {
	Consume(ctx context.Context, trigger domain.Trigger) error
}

// Func adapts a plain function to Consumer.
type Func func(ctx context.Context, trigger domain.Trigger) error

// Consume calls f.
func (f Func) Consume(ctx context.Context, trigger domain.Trigger) error {
	return f(ctx, trigger)
}

// LogConsumer writes triggers to the context logger.
type LogConsumer struct{}

// Consume logs the trigger.
func (LogConsumer) Consume(ctx context.Context, trigger domain.Trigger) error {
	logger.WarnKV(ctx, "Emergency trigger",
		"alert_id", trigger.AlertID,
		"owner_id", trigger.OwnerID,
		"source", string(trigger.Source),
		"detected_at", trigger.DetectedAt,
		"tracking_reference", trigger.TrackingReference,
	)

	return nil
}

// Multi fans a trigger out to every consumer, in order. All consumers are
// called even if some fail; their errors are joined.
type Multi []Consumer

// Consume calls every consumer.
func (m Multi) Consume(ctx context.Context, trigger domain.Trigger) error {
	var errs []error

	for i, c := range m {
		if err := c.Consume(ctx, trigger); err != nil {
			errs = append(errs, fmt.Errorf("consumer %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
