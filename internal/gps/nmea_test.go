package gps

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// withChecksum appends the "*hh" suffix NMEA receivers emit.
func withChecksum(body string) string {
	var sum byte
	for i := range len(body) {
		sum ^= body[i]
	}

	return fmt.Sprintf("$%s*%02X", body, sum)
}

// TestParse_RMC decodes a valid southern/western fix.
func TestParse_RMC(t *testing.T) {
	t.Parallel()

	s, err := Parse(withChecksum("GPRMC,123519.50,A,4807.038,S,01131.000,W,022.4,084.4,230394,003.1,W"))
	require.NoError(t, err)
	require.NotNil(t, s.RMC)
	require.Nil(t, s.GGA)

	rmc := s.RMC
	require.True(t, rmc.Valid)
	require.InDelta(t, -48.1173, rmc.Lat, 1e-4)
	require.InDelta(t, -11.516667, rmc.Lng, 1e-4)
	require.InDelta(t, 22.4*knotsToMetersPerSecond, rmc.Speed, 1e-9)
	require.InDelta(t, 84.4, rmc.Heading, 1e-9)
	require.Equal(t, time.Date(1994, 3, 23, 12, 35, 19, 500_000_000, time.UTC), rmc.Time)
}

// TestParse_GGA decodes altitude and HDOP from any talker.
func TestParse_GGA(t *testing.T) {
	t.Parallel()

	s, err := Parse(withChecksum("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	require.NoError(t, err)
	require.NotNil(t, s.GGA)
	require.Equal(t, 1, s.GGA.Quality)
	require.InDelta(t, 0.9, s.GGA.HDOP, 1e-9)
	require.InDelta(t, 545.4, s.GGA.Altitude, 1e-9)
}

// TestParse_Errors covers void fixes, checksums and unknown sentences.
func TestParse_Errors(t *testing.T) {
	t.Parallel()

	s, err := Parse(withChecksum("GPRMC,123519,V,,,,,,,230394,,"))
	require.NoError(t, err)
	require.False(t, s.RMC.Valid)

	s, err = Parse(withChecksum("GPGGA,123519,,,,,0,00,,,M,,M,,"))
	require.NoError(t, err)
	require.Zero(t, s.GGA.Quality)

	_, err = Parse("$GPRMC,123519,A,4807.038,N,01131.000,E,0,0,230394,,*00")
	require.ErrorIs(t, err, errMalformed)
	require.ErrorContains(t, err, "checksum")

	_, err = Parse("$GPRMC,123519,A,4807.038,N,01131.000,E,0,0,230394,,")
	require.ErrorIs(t, err, errMalformed)

	_, err = Parse(withChecksum("GPGSV,3,1,11"))
	require.ErrorIs(t, err, errUnsupported)

	_, err = Parse("GPRMC,no dollar")
	require.ErrorIs(t, err, errMalformed)

	_, err = Parse(withChecksum("GPRMC,123519,A,4807.038,Q,01131.000,E,0,0,230394,,"))
	require.ErrorIs(t, err, errMalformed)
}
