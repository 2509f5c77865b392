package alarm

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DetectorConfig tunes the shake detector.
type DetectorConfig struct {
	// ThresholdDelta is the L1 motion delta a sample must exceed to count.
	ThresholdDelta float64 `yaml:"threshold_delta" validate:"gt=0"`
	// RequiredCount is the number of counted shakes that fire a trigger.
	RequiredCount uint32 `yaml:"required_count" validate:"gte=1"`
	// ResetWindow drops a partial count when no shake follows in time.
	ResetWindow time.Duration `yaml:"reset_window" validate:"gte=0s"`
	// Cooldown suppresses new triggers after one fired.
	Cooldown time.Duration `yaml:"cooldown" validate:"gte=0s"`
}

// DefaultDetectorConfig returns the settings used when nothing else is configured.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ThresholdDelta: 15,
		RequiredCount:  3,
		ResetWindow:    3 * time.Second,
		Cooldown:       2 * time.Minute,
	}
}

// ErrInvalidConfig is matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid detector config")

// ConfigError reports a detector setting that was rejected at arm time.
type ConfigError struct {
	// Field is the rejected setting.
	Field string
	// Reason describes the violated rule.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

var (
	//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use.
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the configuration and returns a *ConfigError on the first
// rejected field. Values are never clamped.
func (c DetectorConfig) Validate() error {
	if math.IsNaN(c.ThresholdDelta) || math.IsInf(c.ThresholdDelta, 0) {
		return &ConfigError{Field: "ThresholdDelta", Reason: "must be finite"}
	}

	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]

		return &ConfigError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param()),
		}
	}

	return fmt.Errorf("validate detector config: %w", err)
}

// EventKind enumerates what a processed sample produced.
type EventKind uint8

const (
	// EventNone means the sample changed nothing observable.
	EventNone EventKind = iota
	// EventShakeCounted means the sample counted as a shake.
	EventShakeCounted
	// EventTriggered means the required count was reached.
	EventTriggered
	// EventReset means a partial count expired.
	EventReset
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventShakeCounted:
		return "shake_counted"
	case EventTriggered:
		return "triggered"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is the detector's answer to a sample or a deadline check.
type Event struct {
	// Kind says what happened.
	Kind EventKind
	// Count is the accumulated count for EventShakeCounted.
	Count uint32
}

// NoEvent is the zero event.
func NoEvent() Event { return Event{Kind: EventNone} }

// ShakeCounted builds an EventShakeCounted carrying the new count.
func ShakeCounted(count uint32) Event { return Event{Kind: EventShakeCounted, Count: count} }

// Triggered builds an EventTriggered.
func Triggered() Event { return Event{Kind: EventTriggered} }

// Reset builds an EventReset.
func Reset() Event { return Event{Kind: EventReset} }
