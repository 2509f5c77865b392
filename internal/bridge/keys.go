package bridge

// Durable store keys.
const (
	// KeyArmedFlag mirrors the arm/disarm action. Writer: foreground.
	KeyArmedFlag = "armed_flag"
	// KeyArmedAt changes on every arm action so a re-arm between two polls
	// is not mistaken for an unchanged armed state. Writer: foreground.
	KeyArmedAt = "armed_at"
	// KeyDetectorConfig holds the detector tuning. Writer: foreground.
	KeyDetectorConfig = "detector_config"
	// KeyMotionSnapshot is the last accelerometer reading. Writer: foreground.
	KeyMotionSnapshot = "motion_snapshot"
	// KeyTriggerSignal is the one-shot trigger flag. Writers: both; cleared by foreground.
	KeyTriggerSignal = "trigger_signal"
	// KeyLastTriggerAt lets each context honour a cooldown started by the other.
	KeyLastTriggerAt = "last_trigger_at"
	// KeyTrackingSession is the persisted tracking session.
	KeyTrackingSession = "tracking_session"
	// KeyVoiceCooldownUntil is the independent voice-alert suppression deadline.
	KeyVoiceCooldownUntil = "voice_cooldown_until"
	// KeyBackgroundCheckpoint is the capture time of the last snapshot the
	// background executor consumed.
	KeyBackgroundCheckpoint = "background_checkpoint"
)
