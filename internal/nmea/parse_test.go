package nmea

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

// Reference sentences with externally computed checksums, so the
// checksum path is not validated against itself.
const (
	goodRMC = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	goodGGA = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"

	southRMC = "$GPRMC,081836,A,3751.65,S,14507.36,E,000.0,360.0,130998,011.3,E*62"
	voidRMC  = "$GPRMC,123519,V,,,,,,,230394,,*33"
	noFixGGA = "$GPGGA,123519,,,,,0,00,,,M,,M,,*6B"
)

// makeSentence frames a payload with '$' and a computed checksum, for
// building malformed-field cases without hand-computing sums.
func makeSentence(payload string) string {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, sum)
}

func TestParseSentence(t *testing.T) {
	s, err := ParseSentence(goodRMC)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	if s.Talker != "GP" {
		t.Errorf("Talker = %q, want GP", s.Talker)
	}
	if s.Type != "RMC" {
		t.Errorf("Type = %q, want RMC", s.Type)
	}
	if len(s.Fields) != 11 {
		t.Fatalf("len(Fields) = %d, want 11", len(s.Fields))
	}
	if s.Fields[0] != "123519" {
		t.Errorf("Fields[0] = %q, want 123519", s.Fields[0])
	}
	if s.Fields[8] != "230394" {
		t.Errorf("Fields[8] = %q, want 230394", s.Fields[8])
	}
}

func TestParseSentenceTrimsLineEndings(t *testing.T) {
	s, err := ParseSentence(goodRMC + "\r\n")
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	if s.Type != "RMC" {
		t.Errorf("Type = %q, want RMC", s.Type)
	}
}

func TestParseSentenceErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{"missing checksum", "$GPRMC,123519,V", "missing checksum"},
		{"one digit checksum", "$GPRMC,123519,V*3", "missing checksum"},
		{"non hex checksum", "$GPRMC,123519,V*ZZ", "malformed checksum"},
		{"wrong checksum", "$GPRMC,123519,V,,,,,,,230394,,*00", "checksum mismatch"},
		{"short address", "$GP*17", "short address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSentence(tt.line)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseSentenceNoise(t *testing.T) {
	for _, line := range []string{"", "31.000,E,022.4,084.4", "random text"} {
		_, err := ParseSentence(line)
		if !errors.Is(err, ErrNotSentence) {
			t.Errorf("ParseSentence(%q) = %v, want ErrNotSentence", line, err)
		}
	}
}

func TestParseRMC(t *testing.T) {
	s, err := ParseSentence(goodRMC)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	r, err := ParseRMC(s)
	if err != nil {
		t.Fatalf("ParseRMC returned error: %v", err)
	}

	if !r.Valid {
		t.Fatal("expected a valid fix")
	}
	if r.TimeOfDay != "123519" {
		t.Errorf("TimeOfDay = %q, want 123519", r.TimeOfDay)
	}
	want := time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
	}
	if math.Abs(r.Lat-48.1173) > 1e-9 {
		t.Errorf("Lat = %v, want 48.1173", r.Lat)
	}
	if math.Abs(r.Lon-11.516666666666667) > 1e-9 {
		t.Errorf("Lon = %v, want 11.5166...", r.Lon)
	}
	if math.Abs(r.SpeedMPS-11.523555555555555) > 1e-9 {
		t.Errorf("SpeedMPS = %v, want 11.5235... (22.4 knots)", r.SpeedMPS)
	}
	if r.Course == nil || math.Abs(*r.Course-84.4) > 1e-9 {
		t.Errorf("Course = %v, want 84.4", r.Course)
	}
}

func TestParseRMCSouthernHemisphere(t *testing.T) {
	s, err := ParseSentence(southRMC)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	r, err := ParseRMC(s)
	if err != nil {
		t.Fatalf("ParseRMC returned error: %v", err)
	}

	if math.Abs(r.Lat-(-37.86083333333333)) > 1e-9 {
		t.Errorf("Lat = %v, want -37.8608...", r.Lat)
	}
	if math.Abs(r.Lon-145.12266666666667) > 1e-9 {
		t.Errorf("Lon = %v, want 145.1226...", r.Lon)
	}
	if r.SpeedMPS != 0 {
		t.Errorf("SpeedMPS = %v, want 0", r.SpeedMPS)
	}
	want := time.Date(1998, 9, 13, 8, 18, 36, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
	}
}

func TestParseRMCVoidFix(t *testing.T) {
	s, err := ParseSentence(voidRMC)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	r, err := ParseRMC(s)
	if err != nil {
		t.Fatalf("ParseRMC returned error: %v", err)
	}

	if r.Valid {
		t.Error("expected Valid = false for status V")
	}
	if r.TimeOfDay != "123519" {
		t.Errorf("TimeOfDay = %q, want 123519", r.TimeOfDay)
	}
	if !r.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", r.Timestamp)
	}
}

func TestParseRMCErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"too few fields", "GNRMC,100000.00,A", "needs 9 fields"},
		{"bad latitude", "GNRMC,100000.00,A,52XX.0,N,01324.3000,E,10.0,45.0,140326,,,A", "latitude"},
		{"bad hemisphere", "GNRMC,100000.00,A,5231.2000,Q,01324.3000,E,10.0,45.0,140326,,,A", "hemisphere"},
		{"latitude out of range", "GNRMC,100000.00,A,9131.0000,N,01324.3000,E,10.0,45.0,140326,,,A", "out of range"},
		{"bad date", "GNRMC,100000.00,A,5231.2000,N,01324.3000,E,10.0,45.0,14,,,A", "timestamp"},
		{"bad speed", "GNRMC,100000.00,A,5231.2000,N,01324.3000,E,fast,45.0,140326,,,A", "speed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSentence(makeSentence(tt.payload))
			if err != nil {
				t.Fatalf("ParseSentence returned error: %v", err)
			}
			_, err = ParseRMC(s)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseRMCWrongType(t *testing.T) {
	s, err := ParseSentence(goodGGA)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	if _, err := ParseRMC(s); err == nil {
		t.Error("expected error parsing GGA as RMC")
	}
}

func TestParseGGA(t *testing.T) {
	s, err := ParseSentence(goodGGA)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	g, err := ParseGGA(s)
	if err != nil {
		t.Fatalf("ParseGGA returned error: %v", err)
	}

	if g.TimeOfDay != "123519" {
		t.Errorf("TimeOfDay = %q, want 123519", g.TimeOfDay)
	}
	if g.FixQuality != 1 {
		t.Errorf("FixQuality = %d, want 1", g.FixQuality)
	}
	if g.Satellites != 8 {
		t.Errorf("Satellites = %d, want 8", g.Satellites)
	}
	if math.Abs(g.HDOP-0.9) > 1e-9 {
		t.Errorf("HDOP = %v, want 0.9", g.HDOP)
	}
	if math.Abs(g.Altitude-545.4) > 1e-9 {
		t.Errorf("Altitude = %v, want 545.4", g.Altitude)
	}
	if math.Abs(g.Lat-48.1173) > 1e-9 {
		t.Errorf("Lat = %v, want 48.1173", g.Lat)
	}
}

func TestParseGGANoFix(t *testing.T) {
	s, err := ParseSentence(noFixGGA)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	g, err := ParseGGA(s)
	if err != nil {
		t.Fatalf("ParseGGA returned error: %v", err)
	}

	if g.FixQuality != 0 {
		t.Errorf("FixQuality = %d, want 0", g.FixQuality)
	}
	if g.Lat != 0 || g.Lon != 0 {
		t.Errorf("position = %v,%v, want unset", g.Lat, g.Lon)
	}
}

func TestParseGGAWrongType(t *testing.T) {
	s, err := ParseSentence(goodRMC)
	if err != nil {
		t.Fatalf("ParseSentence returned error: %v", err)
	}
	if _, err := ParseGGA(s); err == nil {
		t.Error("expected error parsing RMC as GGA")
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		value      string
		hemisphere string
		want       float64
	}{
		{"4807.038", "N", 48.1173},
		{"4807.038", "S", -48.1173},
		{"01131.000", "E", 11.516666666666667},
		{"01131.000", "W", -11.516666666666667},
		{"0000.000", "N", 0},
	}

	for _, tt := range tests {
		got, err := parseCoordinate(tt.value, tt.hemisphere)
		if err != nil {
			t.Errorf("parseCoordinate(%q, %q) returned error: %v", tt.value, tt.hemisphere, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseCoordinate(%q, %q) = %v, want %v", tt.value, tt.hemisphere, got, tt.want)
		}
	}
}

func TestParseDateTimeFractionalSeconds(t *testing.T) {
	got, err := parseDateTime("140326", "100000.25")
	if err != nil {
		t.Fatalf("parseDateTime returned error: %v", err)
	}
	want := time.Date(2026, 3, 14, 10, 0, 0, 250000000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseDateTime = %v, want %v", got, want)
	}
}
