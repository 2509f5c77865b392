package alarm

import (
	"math"
	"time"
)

// Vector is a three-axis accelerometer reading.
type Vector struct {
	X, Y, Z float64
}

// L1 returns |dx|+|dy|+|dz| between v and o.
func (v Vector) L1(o Vector) float64 {
	return math.Abs(v.X-o.X) + math.Abs(v.Y-o.Y) + math.Abs(v.Z-o.Z)
}

// MotionSample is one accelerometer reading with its capture time.
type MotionSample struct {
	Vector

	// CapturedAt is when the reading was taken.
	CapturedAt time.Time
}

// MotionSnapshot is the last motion sample the foreground persisted for the
// background executor.
type MotionSnapshot = MotionSample
