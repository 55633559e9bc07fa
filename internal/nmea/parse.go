package nmea

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/snaptrack/internal/geo"
)

// ErrNotSentence marks lines that do not carry an NMEA sentence at
// all, such as the partial line read when attaching to a port
// mid-stream. Callers usually skip these rather than report them.
var ErrNotSentence = errors.New("not an nmea sentence")

// metersPerSecondPerKnot converts speed over ground. A nautical mile
// is exactly 1852 m.
const metersPerSecondPerKnot = 1852.0 / 3600.0

// hdopErrorBaseMeters scales HDOP into an accuracy estimate. 5 m is
// the customary single-point range error for consumer GNSS, so
// accuracy = HDOP * 5.
const hdopErrorBaseMeters = 5.0

// Sentence is one checksum-validated NMEA 0183 sentence split into
// its address and data fields.
type Sentence struct {
	Talker string   // device class, e.g. "GP" (GPS) or "GN" (multi-constellation)
	Type   string   // sentence type, e.g. "RMC" or "GGA"
	Fields []string // data fields after the address
}

// ParseSentence validates the framing and checksum of one line and
// splits it into fields. Lines without a leading '$' return
// ErrNotSentence.
func ParseSentence(line string) (*Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, ErrNotSentence
	}

	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return nil, fmt.Errorf("missing checksum in %q", line)
	}
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("malformed checksum in %q", line)
	}

	payload := line[1:star]
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	if sum != byte(want) {
		return nil, fmt.Errorf("checksum mismatch in %q: computed %02X, sentence carries %02X", line, sum, want)
	}

	fields := strings.Split(payload, ",")
	address := fields[0]
	if len(address) < 5 {
		return nil, fmt.Errorf("short address %q", address)
	}

	return &Sentence{
		Talker: address[:len(address)-3],
		Type:   address[len(address)-3:],
		Fields: fields[1:],
	}, nil
}

// RMC is a "recommended minimum" fix: UTC timestamp, position, speed
// and course over ground. It is the only sentence that carries the
// date, so sample assembly is anchored on it.
type RMC struct {
	// TimeOfDay is the raw hhmmss[.sss] token, kept for pairing the
	// fix with a GGA sentence from the same epoch.
	TimeOfDay string

	// Timestamp is the fix instant in UTC.
	Timestamp time.Time

	geo.Point

	// SpeedMPS is speed over ground converted from knots.
	SpeedMPS float64

	// Course is degrees true. Nil when the receiver omits it, which
	// is normal while stationary.
	Course *float64

	// Valid reports receiver status A (active). Void fixes carry no
	// position and only TimeOfDay is populated.
	Valid bool
}

// ParseRMC decodes an RMC sentence.
func ParseRMC(s *Sentence) (*RMC, error) {
	if s.Type != "RMC" {
		return nil, fmt.Errorf("not an RMC sentence: %s%s", s.Talker, s.Type)
	}
	if len(s.Fields) < 9 {
		return nil, fmt.Errorf("RMC needs 9 fields, got %d", len(s.Fields))
	}

	r := &RMC{TimeOfDay: s.Fields[0], Valid: s.Fields[1] == "A"}
	if !r.Valid {
		return r, nil
	}

	var err error
	if r.Lat, err = parseCoordinate(s.Fields[2], s.Fields[3]); err != nil {
		return nil, fmt.Errorf("RMC latitude: %w", err)
	}
	if r.Lon, err = parseCoordinate(s.Fields[4], s.Fields[5]); err != nil {
		return nil, fmt.Errorf("RMC longitude: %w", err)
	}
	if !r.Point.Valid() {
		return nil, fmt.Errorf("RMC position out of range: %.4f, %.4f", r.Lat, r.Lon)
	}
	if r.Timestamp, err = parseDateTime(s.Fields[8], s.Fields[0]); err != nil {
		return nil, fmt.Errorf("RMC timestamp: %w", err)
	}

	if s.Fields[6] != "" {
		knots, err := strconv.ParseFloat(s.Fields[6], 64)
		if err != nil {
			return nil, fmt.Errorf("RMC speed: %w", err)
		}
		r.SpeedMPS = knots * metersPerSecondPerKnot
	}
	if s.Fields[7] != "" {
		course, err := strconv.ParseFloat(s.Fields[7], 64)
		if err != nil {
			return nil, fmt.Errorf("RMC course: %w", err)
		}
		r.Course = &course
	}

	return r, nil
}

// GGA is a fix-quality sentence: satellite count, HDOP and altitude.
// It carries no date, so it only ever annotates the RMC fix that
// shares its time-of-day token.
type GGA struct {
	TimeOfDay string

	geo.Point

	// FixQuality is 0 for no fix, 1 for GPS, 2 for differential;
	// higher values are RTK modes.
	FixQuality int
	Satellites int
	HDOP       float64

	// Altitude is meters above mean sea level.
	Altitude float64
}

// ParseGGA decodes a GGA sentence. A no-fix sentence (quality 0)
// parses successfully with only TimeOfDay populated, since its
// position fields are blank.
func ParseGGA(s *Sentence) (*GGA, error) {
	if s.Type != "GGA" {
		return nil, fmt.Errorf("not a GGA sentence: %s%s", s.Talker, s.Type)
	}
	if len(s.Fields) < 9 {
		return nil, fmt.Errorf("GGA needs 9 fields, got %d", len(s.Fields))
	}

	g := &GGA{TimeOfDay: s.Fields[0]}

	if s.Fields[5] != "" {
		quality, err := strconv.Atoi(s.Fields[5])
		if err != nil {
			return nil, fmt.Errorf("GGA fix quality: %w", err)
		}
		g.FixQuality = quality
	}
	if g.FixQuality == 0 {
		return g, nil
	}

	var err error
	if g.Lat, err = parseCoordinate(s.Fields[1], s.Fields[2]); err != nil {
		return nil, fmt.Errorf("GGA latitude: %w", err)
	}
	if g.Lon, err = parseCoordinate(s.Fields[3], s.Fields[4]); err != nil {
		return nil, fmt.Errorf("GGA longitude: %w", err)
	}
	if !g.Point.Valid() {
		return nil, fmt.Errorf("GGA position out of range: %.4f, %.4f", g.Lat, g.Lon)
	}
	if g.Satellites, err = strconv.Atoi(s.Fields[6]); err != nil {
		return nil, fmt.Errorf("GGA satellite count: %w", err)
	}
	if g.HDOP, err = strconv.ParseFloat(s.Fields[7], 64); err != nil {
		return nil, fmt.Errorf("GGA hdop: %w", err)
	}
	if g.Altitude, err = strconv.ParseFloat(s.Fields[8], 64); err != nil {
		return nil, fmt.Errorf("GGA altitude: %w", err)
	}

	return g, nil
}

// parseCoordinate converts the NMEA ddmm.mmmm / dddmm.mmmm form plus
// its hemisphere letter into signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", value, err)
	}

	degrees := math.Floor(v / 100)
	decimal := degrees + (v-degrees*100)/60

	switch hemisphere {
	case "N", "E":
	case "S", "W":
		decimal = -decimal
	default:
		return 0, fmt.Errorf("hemisphere %q", hemisphere)
	}
	return decimal, nil
}

// parseDateTime combines the RMC ddmmyy date with an hhmmss[.sss]
// time-of-day into a UTC instant.
func parseDateTime(date, clock string) (time.Time, error) {
	if len(date) != 6 {
		return time.Time{}, fmt.Errorf("date %q", date)
	}
	day, errD := strconv.Atoi(date[0:2])
	month, errM := strconv.Atoi(date[2:4])
	year, errY := strconv.Atoi(date[4:6])
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, fmt.Errorf("date %q", date)
	}

	if len(clock) < 6 {
		return time.Time{}, fmt.Errorf("time %q", clock)
	}
	hour, errH := strconv.Atoi(clock[0:2])
	minute, errMin := strconv.Atoi(clock[2:4])
	seconds, errS := strconv.ParseFloat(clock[4:], 64)
	if errH != nil || errMin != nil || errS != nil {
		return time.Time{}, fmt.Errorf("time %q", clock)
	}

	// Two-digit years pivot at 80: 80..99 are 19xx, the rest 20xx.
	if year >= 80 {
		year += 1900
	} else {
		year += 2000
	}

	whole := math.Floor(seconds)
	nanos := int((seconds - whole) * float64(time.Second))
	return time.Date(year, time.Month(month), day, hour, minute, int(whole), nanos, time.UTC), nil
}
