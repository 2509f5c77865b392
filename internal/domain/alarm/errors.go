package alarm

import "errors"

var (
	// ErrPermissionLost is returned when sensor or location access is revoked
	// mid-operation. The owner transitions to disarmed/inactive and does not retry.
	ErrPermissionLost = errors.New("permission lost")

	// ErrTransientIO wraps persistence and network write failures. Callers log
	// it and let the next scheduled tick retry.
	ErrTransientIO = errors.New("transient io failure")

	// ErrBudgetExceeded marks a background wake cycle that ran out of time.
	ErrBudgetExceeded = errors.New("background budget exceeded")
)
