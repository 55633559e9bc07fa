// Package track implements the per-device GPS track-processing state
// machine: classify each raw sample against the head of its device's
// processed stream, smooth it, snap it to the road network, and
// persist the result with derived metadata.
package track

import (
	"context"
	"encoding/json"
	"time"

	"github.com/banshee-data/snaptrack/internal/geo"
	"github.com/banshee-data/snaptrack/internal/osrm"
)

// Method records which stage of the cleaning pipeline produced the
// emitted coordinates.
type Method string

const (
	// MethodRawFirst marks a device's first sample or the re-anchor
	// after a stale gap; coordinates pass through unsmoothed.
	MethodRawFirst Method = "raw_first"

	// MethodKalman marks coordinates that were smoothed but not
	// map-matched (short context or low matching confidence).
	MethodKalman Method = "kalman"

	// MethodOSRM marks coordinates snapped to the road network with
	// acceptable confidence.
	MethodOSRM Method = "osrm"

	// MethodKalmanFallback marks smoothed coordinates kept because
	// the map matcher failed outright.
	MethodKalmanFallback Method = "kalman_fallback"
)

// Outcome classifies what one processing job did.
type Outcome string

const (
	OutcomeEmittedFirst      Outcome = "emitted_first"
	OutcomeEmittedStale      Outcome = "emitted_stale"
	OutcomeEmitted           Outcome = "emitted"
	OutcomeSkippedOutOfOrder Outcome = "skipped_out_of_order"
	OutcomeSkippedDuplicate  Outcome = "skipped_duplicate"
	OutcomeStopCoalesced     Outcome = "stop_coalesced"
)

// Sample is one raw GPS measurement as received from a device.
type Sample struct {
	ID       string  `json:"id"`
	DeviceID string  `json:"deviceId"`
	TripID   *string `json:"tripId,omitempty"`

	// Timestamp is the wall-clock instant of measurement, UTC.
	Timestamp time.Time `json:"timestamp"`

	geo.Point

	Accuracy *float64 `json:"accuracy,omitempty"` // meters, >= 0
	Speed    *float64 `json:"speed,omitempty"`    // device-reported, m/s
	Heading  *float64 `json:"heading,omitempty"`  // degrees

	// Metadata carries arbitrary client-supplied JSON through the
	// pipeline untouched.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ProcessedSample is one emitted measurement: a sample that has passed
// through the pipeline, plus derived metadata. Outside the two
// stop-coalescing fields (LastSeen, StopCount) processed samples are
// immutable once written.
type ProcessedSample struct {
	ID       string  `json:"id"`
	DeviceID string  `json:"deviceId"`
	TripID   *string `json:"tripId,omitempty"`

	// Timestamp is copied from the raw sample.
	Timestamp time.Time `json:"timestamp"`

	geo.Point

	Accuracy *float64 `json:"accuracy,omitempty"`

	// Distance is meters travelled from the previous processed
	// sample; zero for a device's first sample.
	Distance        float64 `json:"distance"`
	TimeDiffSeconds float64 `json:"timeDiffSeconds"`
	Speed           float64 `json:"speed"` // m/s, derived

	Method             Method  `json:"processingMethod"`
	MatchingConfidence float64 `json:"matchingConfidence"`

	ProcessedAt time.Time `json:"processedAt"`
	RawSampleID string    `json:"rawSampleId"`

	// LastSeen and StopCount accumulate stop-coalesced successors:
	// samples that moved less than the stop threshold update these
	// two fields instead of inserting.
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	StopCount int        `json:"stopCount"`
}

// Result describes the outcome of one processing job.
type Result struct {
	Outcome Outcome

	// Sample is the emitted processed sample for the emitted_*
	// outcomes, nil otherwise.
	Sample *ProcessedSample
}

// SampleStore is the storage port the processor depends on.
type SampleStore interface {
	// GetRawSample loads a raw sample by id, returning
	// ErrRawSampleNotFound when the id is unknown.
	GetRawSample(ctx context.Context, id string) (*Sample, error)

	// FindLatestProcessed returns the most recent processed sample
	// for the device, or ErrNoProcessedSample when the device has
	// none.
	FindLatestProcessed(ctx context.Context, deviceID string) (*ProcessedSample, error)

	// FindRecentProcessed returns up to n processed samples for the
	// device, newest first.
	FindRecentProcessed(ctx context.Context, deviceID string, n int) ([]*ProcessedSample, error)

	// InsertProcessed persists a processed sample, assigning its id.
	// It reports inserted=false when a sample with the same raw
	// source id already exists; that is a successful no-op, not an
	// error.
	InsertProcessed(ctx context.Context, s *ProcessedSample) (inserted bool, err error)

	// UpdateProcessedMetadata applies the stop-coalescing mutation:
	// set lastSeen and increment the stop counter. It is the only
	// mutation permitted on a processed sample.
	UpdateProcessedMetadata(ctx context.Context, id string, lastSeen time.Time, stopCountInc int) error
}

// Matcher is the map-matching port. *osrm.Client satisfies it.
type Matcher interface {
	Match(ctx context.Context, points []osrm.TracePoint) ([]osrm.MatchedPoint, error)
}

// Smoother is the coordinate-smoothing port. *kalman.Smoother
// satisfies it.
type Smoother interface {
	Filter(deviceID string, lat, lon float64) (float64, float64)
	Reset(deviceID string)
}

// Publisher receives each emitted processed sample after it is
// durably stored. Implementations must not block.
type Publisher interface {
	PublishProcessed(s *ProcessedSample)
}
