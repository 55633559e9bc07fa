// Package config loads pipeline configuration from the environment.
//
// Every tunable has a default matching production behavior; the
// environment overrides individual keys. Daemon-level concerns such as
// the listen address and database path stay on command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment keys. Values are documented on the Config fields.
const (
	EnvStopThresholdMeters = "STOP_THRESHOLD_METERS"
	EnvMaxLastLocationAge  = "MAX_LAST_LOCATION_AGE_SECONDS"
	EnvOSRMContextPoints   = "OSRM_CONTEXT_POINTS"
	EnvOSRMMinConfidence   = "OSRM_MIN_CONFIDENCE"
	EnvKalmanQ             = "KALMAN_Q"
	EnvKalmanR             = "KALMAN_R"
	EnvWorkerConcurrency   = "WORKER_CONCURRENCY"
	EnvQueueRateLimit      = "QUEUE_RATE_LIMIT"
	EnvOSRMBaseURL         = "OSRM_BASE_URL"
)

// Config holds the pipeline tunables.
type Config struct {
	// StopThresholdMeters is the movement floor: a sample closer
	// than this to its predecessor coalesces into it.
	StopThresholdMeters float64

	// MaxLastLocationAge is the staleness horizon: a predecessor
	// older than this (against the wall clock) triggers a filter
	// reset and a fresh anchor point.
	MaxLastLocationAge time.Duration

	// OSRMContextPoints is the trailing window size sent to the
	// map matcher, including the current point.
	OSRMContextPoints int

	// OSRMMinConfidence is the minimum matching confidence at which
	// matched coordinates replace smoothed ones.
	OSRMMinConfidence float64

	// KalmanQ and KalmanR are the smoother's process and
	// measurement noise.
	KalmanQ float64
	KalmanR float64

	// WorkerConcurrency is the number of parallel queue workers.
	WorkerConcurrency int

	// QueueRateLimit caps job starts per second, process-wide.
	QueueRateLimit float64

	// OSRMBaseURL is the root of the OSRM instance.
	OSRMBaseURL string
}

// Default returns production defaults. OSRMBaseURL has no default and
// must come from the environment.
func Default() Config {
	return Config{
		StopThresholdMeters: 5,
		MaxLastLocationAge:  300 * time.Second,
		OSRMContextPoints:   10,
		OSRMMinConfidence:   0.5,
		KalmanQ:             0.001,
		KalmanR:             5.0,
		WorkerConcurrency:   10,
		QueueRateLimit:      100,
	}
}

// FromEnv builds a Config from defaults overridden by the
// environment. Malformed values are errors, not silent fallbacks.
func FromEnv() (Config, error) {
	cfg := Default()

	var err error
	if cfg.StopThresholdMeters, err = envFloat(EnvStopThresholdMeters, cfg.StopThresholdMeters); err != nil {
		return Config{}, err
	}
	ageSeconds, err := envInt(EnvMaxLastLocationAge, int(cfg.MaxLastLocationAge/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxLastLocationAge = time.Duration(ageSeconds) * time.Second
	if cfg.OSRMContextPoints, err = envInt(EnvOSRMContextPoints, cfg.OSRMContextPoints); err != nil {
		return Config{}, err
	}
	if cfg.OSRMMinConfidence, err = envFloat(EnvOSRMMinConfidence, cfg.OSRMMinConfidence); err != nil {
		return Config{}, err
	}
	if cfg.KalmanQ, err = envFloat(EnvKalmanQ, cfg.KalmanQ); err != nil {
		return Config{}, err
	}
	if cfg.KalmanR, err = envFloat(EnvKalmanR, cfg.KalmanR); err != nil {
		return Config{}, err
	}
	if cfg.WorkerConcurrency, err = envInt(EnvWorkerConcurrency, cfg.WorkerConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.QueueRateLimit, err = envFloat(EnvQueueRateLimit, cfg.QueueRateLimit); err != nil {
		return Config{}, err
	}
	cfg.OSRMBaseURL = os.Getenv(EnvOSRMBaseURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.StopThresholdMeters < 0 {
		return fmt.Errorf("config: %s must be >= 0, got %v", EnvStopThresholdMeters, c.StopThresholdMeters)
	}
	if c.MaxLastLocationAge <= 0 {
		return fmt.Errorf("config: %s must be > 0, got %v", EnvMaxLastLocationAge, c.MaxLastLocationAge)
	}
	if c.OSRMContextPoints < 1 {
		return fmt.Errorf("config: %s must be >= 1, got %v", EnvOSRMContextPoints, c.OSRMContextPoints)
	}
	if c.OSRMMinConfidence < 0 || c.OSRMMinConfidence > 1 {
		return fmt.Errorf("config: %s must be within [0,1], got %v", EnvOSRMMinConfidence, c.OSRMMinConfidence)
	}
	if c.KalmanQ <= 0 || c.KalmanR <= 0 {
		return fmt.Errorf("config: %s and %s must be > 0, got %v and %v", EnvKalmanQ, EnvKalmanR, c.KalmanQ, c.KalmanR)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("config: %s must be >= 1, got %v", EnvWorkerConcurrency, c.WorkerConcurrency)
	}
	if c.QueueRateLimit <= 0 {
		return fmt.Errorf("config: %s must be > 0, got %v", EnvQueueRateLimit, c.QueueRateLimit)
	}
	if c.OSRMBaseURL == "" {
		return fmt.Errorf("config: %s is required", EnvOSRMBaseURL)
	}
	return nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, v, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, v, err)
	}
	return n, nil
}
