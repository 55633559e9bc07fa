package units

import (
	"fmt"
	"strings"
	"time"
)

// IsTimezoneValid reports whether tz names a zone in the system tz
// database. Validation goes through time.LoadLocation rather than a
// hardcoded list so any installed zone works.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime shifts a stored UTC timestamp into the target zone for
// display. Stored timestamps are always UTC.
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "UTC" {
		return utcTime, nil
	}

	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}

	return utcTime.In(loc), nil
}

// GetTimezoneLabel renders a human-readable label for a zone: the city
// part of the identifier plus its UTC offset, or both offsets when the
// zone observes daylight saving, as in "Berlin (+01:00/+02:00)". A zone
// missing from the tz database comes back unchanged.
func GetTimezoneLabel(tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return tz
	}

	// Probing January and July catches the standard and daylight
	// offsets in either hemisphere.
	year := time.Now().Year()
	_, jan := time.Date(year, time.January, 1, 12, 0, 0, 0, time.UTC).In(loc).Zone()
	_, jul := time.Date(year, time.July, 1, 12, 0, 0, 0, time.UTC).In(loc).Zone()

	name := tz
	if i := strings.LastIndex(tz, "/"); i >= 0 {
		name = tz[i+1:]
	}
	name = strings.ReplaceAll(name, "_", " ")

	std, dst := jan, jul
	if dst < std {
		std, dst = dst, std
	}
	if std == dst {
		return fmt.Sprintf("%s (%s)", name, formatUTCOffset(std))
	}
	return fmt.Sprintf("%s (%s/%s)", name, formatUTCOffset(std), formatUTCOffset(dst))
}

func formatUTCOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
