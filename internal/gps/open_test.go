package gps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestOpen parses device strings.
func TestOpen(t *testing.T) {
	t.Parallel()

	r, err := Open("serial:/dev/ttyUSB1@4800", 9600, time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, r.maxFixAge)

	_, err = Open("serial:@4800", 9600, 0)
	require.Error(t, err)

	_, err = Open("serial:/dev/ttyUSB1@x", 9600, 0)
	require.Error(t, err)
}

// TestOpen_File replays a recorded NMEA log.
func TestOpen_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "track.nmea")
	line := withChecksum("GPRMC,120000,A,5530.000,N,03730.000,E,,,190526,,")
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

	r, err := Open(path, 0, 0)
	require.NoError(t, err)
	require.ErrorIs(t, r.Run(context.Background()), ErrStopped)

	r.mu.Lock()
	defer r.mu.Unlock()

	require.True(t, r.hasFix)
	require.InDelta(t, 37.5, r.latest.Lng, 1e-9)
}

// TestDisabled never produces fixes.
func TestDisabled(t *testing.T) {
	t.Parallel()

	_, err := Disabled{}.CurrentFix(context.Background())
	require.ErrorIs(t, err, ErrNoFix)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, Disabled{}.Watch(ctx, nil))
}
