// Package kalman implements per-device smoothing of GPS coordinates.
//
// Latitude and longitude are filtered by two decoupled one-dimensional
// Kalman filters that share a single scalar error covariance. Over the
// small displacements between consecutive GPS fixes the axes are close
// enough to independent that one covariance tracks both, and each
// update stays a handful of multiplies per axis.
package kalman

import "sync"

// InitialCovariance is the error covariance assigned to a device on
// its first measurement.
const InitialCovariance = 1.0

// Config holds filter noise parameters.
type Config struct {
	ProcessNoise     float64 // Q, covariance drift added per step
	MeasurementNoise float64 // R, expected GPS measurement variance
}

// DefaultConfig returns filter parameters tuned for phone-grade GPS.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:     0.001,
		MeasurementNoise: 5.0,
	}
}

// state is the filter state for one device.
type state struct {
	lat float64
	lon float64
	p   float64 // shared error covariance
}

// Smoother maintains independent filter state per device. All methods
// are safe for concurrent use.
type Smoother struct {
	config Config

	mu     sync.Mutex
	states map[string]*state
}

// NewSmoother creates a smoother with the given noise parameters.
func NewSmoother(config Config) *Smoother {
	return &Smoother{
		config: config,
		states: make(map[string]*state),
	}
}

// Filter folds a measured coordinate pair into the device's filter and
// returns the smoothed estimate. The first measurement for a device
// seeds the filter and is returned unchanged.
func (s *Smoother) Filter(deviceID string, lat, lon float64) (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[deviceID]
	if !ok {
		s.states[deviceID] = &state{lat: lat, lon: lon, p: InitialCovariance}
		return lat, lon
	}

	// Predict: the state model is static, so only the covariance
	// grows, by Q.
	p := st.p + s.config.ProcessNoise

	// Update: fold the measurement in with gain K, shared between
	// the two axes.
	k := p / (p + s.config.MeasurementNoise)
	st.lat += k * (lat - st.lat)
	st.lon += k * (lon - st.lon)
	st.p = (1 - k) * p

	return st.lat, st.lon
}

// Reset drops the filter state for one device. The device's next
// measurement re-seeds the filter and passes through unchanged.
func (s *Smoother) Reset(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, deviceID)
}

// Clear drops the filter state for every device.
func (s *Smoother) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]*state)
}
