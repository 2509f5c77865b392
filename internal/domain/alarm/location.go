package alarm

import "time"

// TriggerSource names the execution context that detected a trigger.
type TriggerSource string

const (
	// SourceForeground marks triggers detected by the foreground monitor.
	SourceForeground TriggerSource = "foreground"
	// SourceBackground marks triggers raised by the background executor.
	SourceBackground TriggerSource = "background"
)

// Trigger is the abstract event handed to the trigger consumer.
type Trigger struct {
	// AlertID identifies the alert this trigger starts or extends.
	AlertID string
	// OwnerID is the device owner the alert belongs to.
	OwnerID string
	// Source is the context that detected the trigger.
	Source TriggerSource
	// DetectedAt is when the trigger was observed by the foreground.
	DetectedAt time.Time
	// TrackingReference is an opaque handle notifiers may turn into a URL.
	TrackingReference string
}

// TrackingSession is the persisted part of a live location tracking session.
type TrackingSession struct {
	AlertID     string
	OwnerID     string
	WindowEndAt time.Time
}

// Remaining returns how much of the window is left at now.
func (s TrackingSession) Remaining(now time.Time) time.Duration {
	if !s.WindowEndAt.After(now) {
		return 0
	}

	return s.WindowEndAt.Sub(now)
}

// LocationSample is one position fix.
type LocationSample struct {
	Lat        float64
	Lng        float64
	Accuracy   float64
	Speed      float64
	Heading    float64
	Altitude   float64
	CapturedAt time.Time
}
