// Package units converts the pipeline's canonical measurements into
// display units. Storage and the processing chain are strictly SI:
// speeds in meters per second, timestamps in UTC. Conversion happens
// only at the edges, in API responses and report output.
package units

import "strings"

// Speed unit identifiers accepted by the stats API and the report tool.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
	KN   = "kn"
)

// One meter per second expressed in each display unit.
const (
	milesPerHourPerMPS      = 2.2369362920544
	kilometersPerHourPerMPS = 3.6
	knotsPerMPS             = 3600.0 / 1852.0
)

// ValidUnits lists every accepted unit identifier. KMPH and KPH name
// the same conversion.
var ValidUnits = []string{MPS, MPH, KMPH, KPH, KN}

// IsValid reports whether unit names a supported display unit.
func IsValid(unit string) bool {
	for _, v := range ValidUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// GetValidUnitsString renders the accepted identifiers for error
// messages, in ValidUnits order.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a stored speed in meters per second into the
// target display unit. An unknown unit passes the value through
// unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * milesPerHourPerMPS
	case KMPH, KPH:
		return speedMPS * kilometersPerHourPerMPS
	case KN:
		return speedMPS * knotsPerMPS
	default:
		return speedMPS
	}
}
