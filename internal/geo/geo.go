// Package geo provides great-circle distance and speed math for GPS
// coordinates on the WGS-84 mean sphere.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMeters is the WGS-84 mean earth radius.
const EarthRadiusMeters = 6371008.8

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point carries finite coordinates inside
// WGS-84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine great-circle distance between a and b
// in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lon * math.Pi / 180

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Speed returns distance over elapsed time in meters per second.
// Elapsed times of zero or less yield zero so that clock ties and
// replayed samples never produce infinite or negative speeds.
func Speed(distanceMeters float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return distanceMeters / elapsed.Seconds()
}
