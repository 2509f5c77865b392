package background

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/shake-alarm/internal/bridge"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
)

// tickingSource emits samples with X = index every spacing, then ends.
type tickingSource struct {
	count   int
	spacing time.Duration
}

func (s tickingSource) Run(ctx context.Context, onSample func(domain.MotionSample)) error {
	for i := range s.count {
		if i > 0 {
			time.Sleep(s.spacing)
		}

		if ctx.Err() != nil {
			return nil
		}

		onSample(domain.MotionSample{Vector: domain.Vector{X: float64(i)}, CapturedAt: time.Now()})
	}

	return nil
}

// TestRecorder_Throttles keeps at most one snapshot per interval.
func TestRecorder_Throttles(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		b := bridge.New(kv.NewMemoryStore())
		recorder := NewRecorder(b, nil, 200*time.Millisecond)

		// Samples at 0, 120, 240, 360, 480ms: 0, 240 and 480 pass.
		require.NoError(t, recorder.Run(t.Context(), tickingSource{count: 5, spacing: 120 * time.Millisecond}))

		snapshot, ok, err := b.MotionSnapshot(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		require.InDelta(t, 4.0, snapshot.X, 1e-9)
	})
}

// TestRecorder_YieldsToForeground refuses to compete for the device.
func TestRecorder_YieldsToForeground(t *testing.T) {
	t.Parallel()

	b := bridge.New(kv.NewMemoryStore())
	err := NewRecorder(b, fakeChecker{running: true}, 0).Run(t.Context(), tickingSource{count: 1})
	require.ErrorIs(t, err, errForegroundRunning)

	_, ok, err := b.MotionSnapshot(t.Context())
	require.NoError(t, err)
	require.False(t, ok)
}
