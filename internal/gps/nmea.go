package gps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

const (
	knotsToMetersPerSecond = 0.514444
	// Typical horizontal error of consumer receivers per unit of HDOP.
	metersPerHDOP = 5.0
)

var (
	errUnsupported = errors.New("unsupported nmea sentence")
	errMalformed   = errors.New("malformed nmea sentence")
)

// RMC is the recommended minimum navigation sentence.
type RMC struct {
	Time    time.Time
	Valid   bool
	Lat     float64
	Lng     float64
	Speed   float64 // m/s
	Heading float64 // degrees true
}

// GGA is the fix data sentence.
type GGA struct {
	Quality  int
	HDOP     float64
	Altitude float64
}

// Sentence is one decoded NMEA sentence: exactly one of RMC or GGA is set.
type Sentence struct {
	RMC *RMC
	GGA *GGA
}

// Parse decodes a single checksummed "$xxRMC" or "$xxGGA" line, any talker id.
func Parse(line string) (Sentence, error) {
	line = strings.TrimSpace(line)

	kind, err := sentenceType(line)
	if err != nil {
		return Sentence{}, err
	}

	decoded, err := nmea.Parse(line)
	if err != nil {
		// Receivers without a fix leave the position fields empty.
		if void, ok := voidSentence(line, kind); ok {
			return void, nil
		}

		return Sentence{}, fmt.Errorf("%w: %w", errMalformed, err)
	}

	switch s := decoded.(type) {
	case nmea.RMC:
		return Sentence{RMC: fromRMC(s)}, nil
	case nmea.GGA:
		gga, convErr := fromGGA(s)
		if convErr != nil {
			return Sentence{}, convErr
		}

		return Sentence{GGA: gga}, nil
	default:
		return Sentence{}, fmt.Errorf("%w: %q", errUnsupported, decoded.DataType())
	}
}

// sentenceType returns the data type of line, rejecting everything but RMC and GGA.
func sentenceType(line string) (string, error) {
	body, found := strings.CutPrefix(line, "$")
	if !found {
		return "", fmt.Errorf("%w: missing '$'", errMalformed)
	}

	address, _, _ := strings.Cut(body, ",")
	address, _, _ = strings.Cut(address, "*")

	if len(address) < 5 {
		return "", fmt.Errorf("%w: %q", errUnsupported, address)
	}

	kind := address[2:]
	if kind != nmea.TypeRMC && kind != nmea.TypeGGA {
		return "", fmt.Errorf("%w: %q", errUnsupported, address)
	}

	return kind, nil
}

// voidSentence recognizes an RMC with status V or a GGA with quality 0.
func voidSentence(line, kind string) (Sentence, bool) {
	payload, _, _ := strings.Cut(line, "*")
	fields := strings.Split(payload, ",")

	switch {
	case kind == nmea.TypeRMC && len(fields) > 2 && fields[2] == nmea.InvalidRMC:
		return Sentence{RMC: &RMC{}}, true
	case kind == nmea.TypeGGA && len(fields) > 6 && fields[6] == nmea.Invalid:
		return Sentence{GGA: &GGA{}}, true
	default:
		return Sentence{}, false
	}
}

func fromRMC(s nmea.RMC) *RMC {
	rmc := &RMC{Valid: s.Validity == nmea.ValidRMC}
	if !rmc.Valid {
		return rmc
	}

	rmc.Time = fixTime(s.Date, s.Time)
	rmc.Lat = s.Latitude
	rmc.Lng = s.Longitude
	rmc.Speed = s.Speed * knotsToMetersPerSecond
	rmc.Heading = s.Course

	return rmc
}

func fromGGA(s nmea.GGA) (*GGA, error) {
	quality, err := strconv.Atoi(s.FixQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: quality %q", errMalformed, s.FixQuality)
	}

	gga := &GGA{Quality: quality}
	if quality == 0 {
		return gga, nil
	}

	gga.HDOP = s.HDOP
	gga.Altitude = s.Altitude

	return gga, nil
}

// fixTime combines the RMC date and time in UTC. Two-digit years from 69 on
// are read as 19xx.
func fixTime(d nmea.Date, t nmea.Time) time.Time {
	year := 2000 + d.YY
	if d.YY >= 69 {
		year = 1900 + d.YY
	}

	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
