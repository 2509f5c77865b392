package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
)

// Bridge reads and writes the cross-context keys.
type Bridge struct {
	// store is the durable channel shared by both contexts.
	store kv.Store
}

// New returns a bridge over store.
func New(store kv.Store) *Bridge {
	return &Bridge{store: store}
}

// Arm validates cfg, then writes it and the arm time before raising the
// armed flag so a background wake never sees the flag without a config.
func (b *Bridge) Arm(ctx context.Context, cfg domain.DetectorConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := b.put(ctx, KeyDetectorConfig, configValue(cfg)); err != nil {
		return err
	}

	if err := b.put(ctx, KeyArmedAt, timeValue(time.Now())); err != nil {
		return err
	}

	return b.put(ctx, KeyArmedFlag, structpb.NewBoolValue(true))
}

// Disarm lowers the armed flag.
func (b *Bridge) Disarm(ctx context.Context) error {
	return b.put(ctx, KeyArmedFlag, structpb.NewBoolValue(false))
}

// Armed reports the armed flag; absent means disarmed.
func (b *Bridge) Armed(ctx context.Context) (bool, error) {
	v, ok, err := b.get(ctx, KeyArmedFlag)
	if err != nil || !ok {
		return false, err
	}

	return boolFromValue(v)
}

// ArmedAt returns when the last arm action happened; zero if never.
func (b *Bridge) ArmedAt(ctx context.Context) (time.Time, error) {
	return b.getTime(ctx, KeyArmedAt)
}

// DetectorConfig returns the persisted detector configuration.
func (b *Bridge) DetectorConfig(ctx context.Context) (domain.DetectorConfig, bool, error) {
	v, ok, err := b.get(ctx, KeyDetectorConfig)
	if err != nil || !ok {
		return domain.DetectorConfig{}, false, err
	}

	cfg, err := configFromValue(v)
	if err != nil {
		return domain.DetectorConfig{}, false, err
	}

	return cfg, true, nil
}

// SaveMotionSnapshot persists the latest accelerometer reading.
func (b *Bridge) SaveMotionSnapshot(ctx context.Context, s domain.MotionSnapshot) error {
	return b.put(ctx, KeyMotionSnapshot, snapshotValue(s))
}

// MotionSnapshot returns the last persisted reading.
func (b *Bridge) MotionSnapshot(ctx context.Context) (domain.MotionSnapshot, bool, error) {
	v, ok, err := b.get(ctx, KeyMotionSnapshot)
	if err != nil || !ok {
		return domain.MotionSnapshot{}, false, err
	}

	s, err := snapshotFromValue(v)
	if err != nil {
		return domain.MotionSnapshot{}, false, err
	}

	return s, true, nil
}

// RaiseTrigger records the trigger time and sets the one-shot signal.
func (b *Bridge) RaiseTrigger(ctx context.Context, at time.Time) error {
	if err := b.put(ctx, KeyLastTriggerAt, timeValue(at)); err != nil {
		return err
	}

	return b.put(ctx, KeyTriggerSignal, structpb.NewBoolValue(true))
}

// TakeTrigger reports whether the signal was raised and, if so, clears it
// before returning. A failed clear reports false so the next poll retries
// instead of dispatching twice.
func (b *Bridge) TakeTrigger(ctx context.Context) (bool, error) {
	v, ok, err := b.get(ctx, KeyTriggerSignal)
	if err != nil || !ok {
		return false, err
	}

	raised, err := boolFromValue(v)
	if err != nil || !raised {
		return false, err
	}

	if err = b.put(ctx, KeyTriggerSignal, structpb.NewBoolValue(false)); err != nil {
		return false, err
	}

	return true, nil
}

// LastTriggerAt returns when either context last fired; zero if never.
func (b *Bridge) LastTriggerAt(ctx context.Context) (time.Time, error) {
	return b.getTime(ctx, KeyLastTriggerAt)
}

// SaveSession persists the tracking session.
func (b *Bridge) SaveSession(ctx context.Context, s domain.TrackingSession) error {
	return b.put(ctx, KeyTrackingSession, sessionValue(s))
}

// Session returns the persisted tracking session.
func (b *Bridge) Session(ctx context.Context) (domain.TrackingSession, bool, error) {
	v, ok, err := b.get(ctx, KeyTrackingSession)
	if err != nil || !ok {
		return domain.TrackingSession{}, false, err
	}

	s, err := sessionFromValue(v)
	if err != nil {
		return domain.TrackingSession{}, false, err
	}

	return s, true, nil
}

// ClearSession removes the persisted tracking session.
func (b *Bridge) ClearSession(ctx context.Context) error {
	if err := b.store.Delete(ctx, KeyTrackingSession); err != nil {
		return fmt.Errorf("%w: clear %s: %w", domain.ErrTransientIO, KeyTrackingSession, err)
	}

	return nil
}

// SetVoiceCooldown records the voice-alert suppression deadline.
func (b *Bridge) SetVoiceCooldown(ctx context.Context, until time.Time) error {
	return b.put(ctx, KeyVoiceCooldownUntil, timeValue(until))
}

// VoiceCooldown returns the voice-alert suppression deadline; zero if unset.
func (b *Bridge) VoiceCooldown(ctx context.Context) (time.Time, error) {
	return b.getTime(ctx, KeyVoiceCooldownUntil)
}

// SaveCheckpoint records the capture time of the last consumed snapshot.
func (b *Bridge) SaveCheckpoint(ctx context.Context, snapshotAt time.Time) error {
	return b.put(ctx, KeyBackgroundCheckpoint, timeValue(snapshotAt))
}

// Checkpoint returns the capture time of the last consumed snapshot.
func (b *Bridge) Checkpoint(ctx context.Context) (time.Time, error) {
	return b.getTime(ctx, KeyBackgroundCheckpoint)
}

func (b *Bridge) getTime(ctx context.Context, key string) (time.Time, error) {
	v, ok, err := b.get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}

	return timeFromValue(v)
}

func (b *Bridge) get(ctx context.Context, key string) (*structpb.Value, bool, error) {
	v, err := b.store.Get(ctx, key)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, kv.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
}

func (b *Bridge) put(ctx context.Context, key string, v *structpb.Value) error {
	if err := b.store.Put(ctx, key, v); err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrTransientIO, key, err)
	}

	return nil
}
