package nmea

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/snaptrack/internal/track"
)

// sampleMetadata is attached to every assembled sample so the
// pipeline can tell receiver-fed samples apart from phone uploads.
type sampleMetadata struct {
	Source     string  `json:"source"`
	Talker     string  `json:"talker,omitempty"`
	FixQuality int     `json:"fixQuality,omitempty"`
	Satellites int     `json:"satellites,omitempty"`
	HDOP       float64 `json:"hdop,omitempty"`
}

// SampleBuilder assembles raw track samples from an interleaved
// RMC/GGA sentence stream. Receivers emit both sentences each epoch;
// the GGA quality context is held until the RMC with the same
// time-of-day token arrives and the pair becomes one sample.
type SampleBuilder struct {
	deviceID string
	tripID   *string
	lastGGA  *GGA
}

// NewSampleBuilder creates a builder that stamps samples with the
// given device ID. tripID may be empty for samples outside any trip.
func NewSampleBuilder(deviceID, tripID string) *SampleBuilder {
	b := &SampleBuilder{deviceID: deviceID}
	if tripID != "" {
		b.tripID = &tripID
	}
	return b
}

// Consume feeds one line into the builder. It returns a sample when
// the line was a valid RMC fix, nil for sentences that only update
// builder state or carry nothing the pipeline needs, and an error
// for lines that failed to parse. Noise lines surface as
// ErrNotSentence so callers can drop them quietly.
func (b *SampleBuilder) Consume(line string) (*track.Sample, error) {
	s, err := ParseSentence(line)
	if err != nil {
		return nil, err
	}

	switch s.Type {
	case "GGA":
		g, err := ParseGGA(s)
		if err != nil {
			return nil, err
		}
		b.lastGGA = g
		return nil, nil

	case "RMC":
		r, err := ParseRMC(s)
		if err != nil {
			return nil, err
		}
		if !r.Valid {
			return nil, nil
		}
		return b.assemble(s.Talker, r)

	default:
		// GSV, GSA, VTG and friends carry nothing the pipeline needs.
		return nil, nil
	}
}

func (b *SampleBuilder) assemble(talker string, r *RMC) (*track.Sample, error) {
	sample := &track.Sample{
		DeviceID:  b.deviceID,
		TripID:    b.tripID,
		Timestamp: r.Timestamp,
		Point:     r.Point,
		Speed:     &r.SpeedMPS,
		Heading:   r.Course,
	}

	meta := sampleMetadata{Source: "nmea", Talker: talker}
	if g := b.lastGGA; g != nil && g.FixQuality > 0 && g.TimeOfDay == r.TimeOfDay {
		accuracy := g.HDOP * hdopErrorBaseMeters
		sample.Accuracy = &accuracy
		meta.FixQuality = g.FixQuality
		meta.Satellites = g.Satellites
		meta.HDOP = g.HDOP
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode sample metadata: %w", err)
	}
	sample.Metadata = encoded

	return sample, nil
}
