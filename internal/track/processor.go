package track

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/snaptrack/internal/geo"
	"github.com/banshee-data/snaptrack/internal/metrics"
	"github.com/banshee-data/snaptrack/internal/osrm"
	"github.com/banshee-data/snaptrack/internal/timeutil"
)

// ProcessorConfig wires the processor's collaborators and thresholds.
type ProcessorConfig struct {
	Store    SampleStore
	Matcher  Matcher
	Smoother Smoother

	// Publisher, when set, receives every emitted sample after its
	// insert commits.
	Publisher Publisher

	// Clock defaults to the real clock.
	Clock timeutil.Clock

	// StopThresholdMeters is the movement floor for stop coalescing.
	StopThresholdMeters float64

	// MaxLastLocationAge is the staleness horizon against the wall
	// clock.
	MaxLastLocationAge time.Duration

	// ContextPoints is the matcher window size including the
	// current point.
	ContextPoints int

	// MinConfidence is the minimum matching confidence at which
	// matched coordinates are accepted.
	MinConfidence float64
}

// Validate checks required collaborators and fills defaults in place.
func (c *ProcessorConfig) Validate() error {
	if c.Store == nil {
		return errors.New("track: store is required")
	}
	if c.Matcher == nil {
		return errors.New("track: matcher is required")
	}
	if c.Smoother == nil {
		return errors.New("track: smoother is required")
	}
	if c.StopThresholdMeters < 0 {
		return fmt.Errorf("track: stop threshold must be >= 0, got %v", c.StopThresholdMeters)
	}
	if c.MaxLastLocationAge <= 0 {
		return fmt.Errorf("track: max last location age must be > 0, got %v", c.MaxLastLocationAge)
	}
	if c.ContextPoints < 1 {
		return fmt.Errorf("track: context points must be >= 1, got %v", c.ContextPoints)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("track: min confidence must be within [0,1], got %v", c.MinConfidence)
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return nil
}

// Processor runs the per-job state machine. Jobs for distinct devices
// run in parallel; jobs for the same device may race, and every run
// classifies independently against the current head of the device's
// processed stream. Readers sort the stream, and the raw-source-id
// idempotence key absorbs redeliveries, so no per-device lock is held.
type Processor struct {
	store    SampleStore
	matcher  Matcher
	smoother Smoother
	pub      Publisher
	clock    timeutil.Clock

	stopThreshold float64
	maxAge        time.Duration
	contextPoints int
	minConfidence float64
}

// NewProcessor creates a Processor from cfg.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{
		store:         cfg.Store,
		matcher:       cfg.Matcher,
		smoother:      cfg.Smoother,
		pub:           cfg.Publisher,
		clock:         cfg.Clock,
		stopThreshold: cfg.StopThresholdMeters,
		maxAge:        cfg.MaxLastLocationAge,
		contextPoints: cfg.ContextPoints,
		minConfidence: cfg.MinConfidence,
	}, nil
}

// Process executes one job: load the raw sample, classify it against
// the device's processed head, and emit, coalesce or skip. Only
// storage faults and absent inputs return errors; matcher failures
// degrade to MethodKalmanFallback and the job still succeeds.
func (p *Processor) Process(ctx context.Context, rawSampleID string) (*Result, error) {
	raw, err := p.store.GetRawSample(ctx, rawSampleID)
	if err != nil {
		if errors.Is(err, ErrRawSampleNotFound) {
			return nil, &Error{Kind: KindInputAbsent, Op: "load raw sample " + rawSampleID, Err: err}
		}
		return nil, storageErr("load raw sample "+rawSampleID, err)
	}
	if !raw.Point.Valid() {
		opsf("dropping sample %s: coordinates (%v, %v) outside WGS-84", raw.ID, raw.Lat, raw.Lon)
		return nil, &Error{
			Kind: KindInvariant,
			Op:   "validate sample " + raw.ID,
			Err:  fmt.Errorf("coordinates (%v, %v) out of range", raw.Lat, raw.Lon),
		}
	}

	last, err := p.store.FindLatestProcessed(ctx, raw.DeviceID)
	if err != nil && !errors.Is(err, ErrNoProcessedSample) {
		return nil, storageErr("load latest processed for "+raw.DeviceID, err)
	}
	if last == nil {
		tracef("device %s: first sample %s", raw.DeviceID, raw.ID)
		return p.emitAnchor(ctx, raw, nil, OutcomeEmittedFirst)
	}

	delta := raw.Timestamp.Sub(last.Timestamp)
	if delta < 0 {
		diagf("device %s: sample %s is %v older than head; skipping", raw.DeviceID, raw.ID, -delta)
		return &Result{Outcome: OutcomeSkippedOutOfOrder}, nil
	}

	if age := p.clock.Since(last.Timestamp); age > p.maxAge {
		diagf("device %s: head is %v old; resetting filter and re-anchoring", raw.DeviceID, age.Round(time.Second))
		p.smoother.Reset(raw.DeviceID)
		return p.emitAnchor(ctx, raw, last, OutcomeEmittedStale)
	}

	d := geo.Distance(last.Point, raw.Point)
	if math.IsNaN(d) {
		return nil, &Error{
			Kind: KindInvariant,
			Op:   "classify sample " + raw.ID,
			Err:  errors.New("distance from head is NaN"),
		}
	}
	if d < p.stopThreshold {
		if err := p.store.UpdateProcessedMetadata(ctx, last.ID, raw.Timestamp, 1); err != nil {
			return nil, storageErr("coalesce stop into "+last.ID, err)
		}
		tracef("device %s: sample %s within %.1f m of head; coalesced", raw.DeviceID, raw.ID, d)
		return &Result{Outcome: OutcomeStopCoalesced}, nil
	}

	smLat, smLon := p.smoother.Filter(raw.DeviceID, raw.Lat, raw.Lon)
	final, method, confidence, err := p.matchContext(ctx, raw, geo.Point{Lat: smLat, Lon: smLon})
	if err != nil {
		return nil, err
	}

	return p.emit(ctx, &ProcessedSample{
		DeviceID:           raw.DeviceID,
		TripID:             raw.TripID,
		Timestamp:          raw.Timestamp,
		Point:              final,
		Accuracy:           raw.Accuracy,
		Distance:           d,
		TimeDiffSeconds:    delta.Seconds(),
		Speed:              geo.Speed(d, delta),
		Method:             method,
		MatchingConfidence: confidence,
		ProcessedAt:        p.clock.Now(),
		RawSampleID:        raw.ID,
	}, OutcomeEmitted)
}

// matchContext runs the second cleaning stage: assemble the trailing
// context, oldest first, and ask the matcher to snap it. Matcher
// errors do not propagate; they degrade to MethodKalmanFallback.
func (p *Processor) matchContext(ctx context.Context, raw *Sample, smoothed geo.Point) (geo.Point, Method, float64, error) {
	recent, err := p.store.FindRecentProcessed(ctx, raw.DeviceID, p.contextPoints-1)
	if err != nil {
		return geo.Point{}, "", 0, storageErr("load context for "+raw.DeviceID, err)
	}

	trace := make([]osrm.TracePoint, 0, len(recent)+1)
	for i := len(recent) - 1; i >= 0; i-- { // newest-first to oldest-first
		s := recent[i]
		trace = append(trace, osrm.TracePoint{Point: s.Point, Time: s.Timestamp, Accuracy: s.Accuracy})
	}
	trace = append(trace, osrm.TracePoint{Point: smoothed, Time: raw.Timestamp, Accuracy: raw.Accuracy})

	if len(trace) < osrm.MinMatchPoints {
		tracef("device %s: context of %d points too short to match", raw.DeviceID, len(trace))
		return smoothed, MethodKalman, 0, nil
	}

	start := time.Now()
	matched, merr := p.matcher.Match(ctx, trace)
	metrics.MatchDuration.Observe(time.Since(start).Seconds())
	if merr != nil {
		opsf("device %s: map matcher failed for sample %s: %v; keeping smoothed coordinates", raw.DeviceID, raw.ID, merr)
		return smoothed, MethodKalmanFallback, 0, nil
	}
	if len(matched) != len(trace) {
		opsf("device %s: matcher returned %d points for %d inputs; keeping smoothed coordinates", raw.DeviceID, len(matched), len(trace))
		return smoothed, MethodKalmanFallback, 0, nil
	}

	tail := matched[len(matched)-1]
	if tail.Confidence >= p.minConfidence {
		return tail.Point, MethodOSRM, tail.Confidence, nil
	}
	tracef("device %s: matching confidence %.3f below %.3f; keeping smoothed coordinates", raw.DeviceID, tail.Confidence, p.minConfidence)
	return smoothed, MethodKalman, tail.Confidence, nil
}

// emitAnchor persists the raw coordinates unchanged: a device's first
// sample, or the fresh anchor after a stale gap. Stale anchors still
// carry distance and timing derived from the stale predecessor.
func (p *Processor) emitAnchor(ctx context.Context, raw *Sample, prev *ProcessedSample, outcome Outcome) (*Result, error) {
	ps := &ProcessedSample{
		DeviceID:    raw.DeviceID,
		TripID:      raw.TripID,
		Timestamp:   raw.Timestamp,
		Point:       raw.Point,
		Accuracy:    raw.Accuracy,
		Method:      MethodRawFirst,
		ProcessedAt: p.clock.Now(),
		RawSampleID: raw.ID,
	}
	if prev != nil {
		d := geo.Distance(prev.Point, raw.Point)
		dt := raw.Timestamp.Sub(prev.Timestamp)
		ps.Distance = d
		ps.TimeDiffSeconds = dt.Seconds()
		ps.Speed = geo.Speed(d, dt)
	}
	return p.emit(ctx, ps, outcome)
}

// emit persists ps and publishes it. A duplicate raw source id is a
// successful no-op, absorbing queue redeliveries.
func (p *Processor) emit(ctx context.Context, ps *ProcessedSample, outcome Outcome) (*Result, error) {
	inserted, err := p.store.InsertProcessed(ctx, ps)
	if err != nil {
		return nil, storageErr("insert processed sample for "+ps.RawSampleID, err)
	}
	if !inserted {
		diagf("device %s: raw sample %s already processed; replay coalesced", ps.DeviceID, ps.RawSampleID)
		return &Result{Outcome: OutcomeSkippedDuplicate}, nil
	}

	metrics.SamplesProcessed.WithLabelValues(string(ps.Method)).Inc()
	tracef("device %s: emitted %s via %s (d=%.1fm dt=%.1fs conf=%.2f)",
		ps.DeviceID, ps.ID, ps.Method, ps.Distance, ps.TimeDiffSeconds, ps.MatchingConfidence)
	if p.pub != nil {
		p.pub.PublishProcessed(ps)
	}
	return &Result{Outcome: outcome, Sample: ps}, nil
}
