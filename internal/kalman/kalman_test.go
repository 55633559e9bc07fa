package kalman

import (
	"math"
	"sync"
	"testing"
)

func TestFilterFirstMeasurementPassesThrough(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	lat, lon := s.Filter("dev-1", 51.5074, -0.1278)
	if lat != 51.5074 || lon != -0.1278 {
		t.Errorf("first measurement altered: got (%f, %f)", lat, lon)
	}
}

func TestFilterSmoothsTowardMeasurement(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	s.Filter("dev-1", 0, 0)
	lat, lon := s.Filter("dev-1", 1, 1)

	// One step from P=1: gain k = (P+Q)/(P+Q+R).
	k := (InitialCovariance + 0.001) / (InitialCovariance + 0.001 + 5.0)
	if math.Abs(lat-k) > 1e-12 || math.Abs(lon-k) > 1e-12 {
		t.Errorf("smoothed estimate = (%f, %f), want (%f, %f)", lat, lon, k, k)
	}
	if lat <= 0 || lat >= 1 {
		t.Errorf("estimate %f not strictly between prior and measurement", lat)
	}
}

func TestFilterConvergesOnStationaryDevice(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	// A parked device reporting the same fix should keep reading
	// back that fix.
	for i := 0; i < 50; i++ {
		lat, lon := s.Filter("dev-1", 48.8566, 2.3522)
		if lat != 48.8566 || lon != 2.3522 {
			t.Fatalf("iteration %d: stationary estimate drifted to (%f, %f)", i, lat, lon)
		}
	}
}

func TestFilterDampsJitter(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	s.Filter("dev-1", 10, 10)
	var lat float64
	// Alternate +/- 0.001 degrees of noise around a fixed position.
	for i := 0; i < 20; i++ {
		noise := 0.001
		if i%2 == 1 {
			noise = -0.001
		}
		lat, _ = s.Filter("dev-1", 10+noise, 10)
	}
	if math.Abs(lat-10) >= 0.001 {
		t.Errorf("jitter not damped: estimate %f further from center than raw noise", lat)
	}
}

func TestFilterDevicesAreIndependent(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	s.Filter("dev-1", 0, 0)
	s.Filter("dev-1", 1, 1)

	// A fresh device is unaffected by dev-1's state.
	lat, lon := s.Filter("dev-2", 5, 6)
	if lat != 5 || lon != 6 {
		t.Errorf("new device got smoothed output (%f, %f)", lat, lon)
	}
}

func TestReset(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	s.Filter("dev-1", 0, 0)
	s.Filter("dev-1", 1, 1)
	s.Reset("dev-1")

	lat, lon := s.Filter("dev-1", 2, 3)
	if lat != 2 || lon != 3 {
		t.Errorf("measurement after reset altered: got (%f, %f)", lat, lon)
	}
}

func TestResetUnknownDeviceIsNoop(t *testing.T) {
	s := NewSmoother(DefaultConfig())
	s.Reset("never-seen")

	lat, lon := s.Filter("never-seen", 1, 2)
	if lat != 1 || lon != 2 {
		t.Errorf("got (%f, %f), want passthrough", lat, lon)
	}
}

func TestClear(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	s.Filter("dev-1", 0, 0)
	s.Filter("dev-2", 0, 0)
	s.Clear()

	lat, _ := s.Filter("dev-1", 7, 7)
	if lat != 7 {
		t.Errorf("dev-1 state survived Clear: got %f", lat)
	}
	lat, _ = s.Filter("dev-2", 8, 8)
	if lat != 8 {
		t.Errorf("dev-2 state survived Clear: got %f", lat)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			device := "dev-a"
			if g%2 == 1 {
				device = "dev-b"
			}
			for i := 0; i < 200; i++ {
				s.Filter(device, float64(i), float64(-i))
				if i%50 == 0 {
					s.Reset(device)
				}
			}
		}(g)
	}
	wg.Wait()
}
