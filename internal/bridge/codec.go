package bridge

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// errMalformed is returned when a stored value does not have the expected shape.
var errMalformed = errors.New("malformed value")

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %w", errMalformed, s, err)
	}

	return t, nil
}

func timeValue(t time.Time) *structpb.Value {
	return structpb.NewStringValue(encodeTime(t))
}

func timeFromValue(v *structpb.Value) (time.Time, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: want timestamp string", errMalformed)
	}

	return decodeTime(s.StringValue)
}

func boolFromValue(v *structpb.Value) (bool, error) {
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("%w: want bool", errMalformed)
	}

	return b.BoolValue, nil
}

func configValue(cfg domain.DetectorConfig) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"sensitivity":    structpb.NewNumberValue(cfg.ThresholdDelta),
		"required_count": structpb.NewNumberValue(float64(cfg.RequiredCount)),
		"reset_window":   structpb.NewStringValue(cfg.ResetWindow.String()),
		"cooldown":       structpb.NewStringValue(cfg.Cooldown.String()),
	}})
}

// configFromValue decodes a stored config. Values that do not fit their Go
// type are rejected as *domain.ConfigError rather than converted.
func configFromValue(v *structpb.Value) (domain.DetectorConfig, error) {
	fields, err := structFields(v, "sensitivity", "required_count", "reset_window", "cooldown")
	if err != nil {
		return domain.DetectorConfig{}, err
	}

	requiredCount, err := countFromValue("RequiredCount", fields["required_count"])
	if err != nil {
		return domain.DetectorConfig{}, err
	}

	resetWindow, err := durationFromValue("ResetWindow", fields["reset_window"])
	if err != nil {
		return domain.DetectorConfig{}, err
	}

	cooldown, err := durationFromValue("Cooldown", fields["cooldown"])
	if err != nil {
		return domain.DetectorConfig{}, err
	}

	cfg := domain.DetectorConfig{
		ThresholdDelta: fields["sensitivity"].GetNumberValue(),
		RequiredCount:  requiredCount,
		ResetWindow:    resetWindow,
		Cooldown:       cooldown,
	}

	if err = cfg.Validate(); err != nil {
		return domain.DetectorConfig{}, err
	}

	return cfg, nil
}

func countFromValue(field string, v *structpb.Value) (uint32, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, &domain.ConfigError{Field: field, Reason: "must be a number"}
	}

	f := n.NumberValue
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		return 0, &domain.ConfigError{Field: field, Reason: fmt.Sprintf("must be a whole number in [0, %d], got %v", uint32(math.MaxUint32), f)}
	}

	return uint32(f), nil
}

func durationFromValue(field string, v *structpb.Value) (time.Duration, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return 0, &domain.ConfigError{Field: field, Reason: "must be a duration string"}
	}

	d, err := time.ParseDuration(s.StringValue)
	if err != nil {
		return 0, &domain.ConfigError{Field: field, Reason: fmt.Sprintf("invalid duration %q", s.StringValue)}
	}

	return d, nil
}

func snapshotValue(s domain.MotionSnapshot) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"x":  structpb.NewNumberValue(s.X),
		"y":  structpb.NewNumberValue(s.Y),
		"z":  structpb.NewNumberValue(s.Z),
		"ts": timeValue(s.CapturedAt),
	}})
}

func snapshotFromValue(v *structpb.Value) (domain.MotionSnapshot, error) {
	fields, err := structFields(v, "x", "y", "z", "ts")
	if err != nil {
		return domain.MotionSnapshot{}, err
	}

	ts, err := timeFromValue(fields["ts"])
	if err != nil {
		return domain.MotionSnapshot{}, err
	}

	return domain.MotionSnapshot{
		Vector: domain.Vector{
			X: fields["x"].GetNumberValue(),
			Y: fields["y"].GetNumberValue(),
			Z: fields["z"].GetNumberValue(),
		},
		CapturedAt: ts,
	}, nil
}

func sessionValue(s domain.TrackingSession) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"alert_id":      structpb.NewStringValue(s.AlertID),
		"user_id":       structpb.NewStringValue(s.OwnerID),
		"window_end_at": timeValue(s.WindowEndAt),
	}})
}

func sessionFromValue(v *structpb.Value) (domain.TrackingSession, error) {
	fields, err := structFields(v, "alert_id", "user_id", "window_end_at")
	if err != nil {
		return domain.TrackingSession{}, err
	}

	end, err := timeFromValue(fields["window_end_at"])
	if err != nil {
		return domain.TrackingSession{}, err
	}

	return domain.TrackingSession{
		AlertID:     fields["alert_id"].GetStringValue(),
		OwnerID:     fields["user_id"].GetStringValue(),
		WindowEndAt: end,
	}, nil
}

// structFields returns the fields of a struct value, checking that every
// required name is present.
func structFields(v *structpb.Value, required ...string) (map[string]*structpb.Value, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("%w: want object", errMalformed)
	}

	fields := s.GetFields()
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing %q", errMalformed, name)
		}
	}

	return fields, nil
}
