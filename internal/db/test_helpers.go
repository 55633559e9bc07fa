package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/snaptrack/internal/geo"
	"github.com/banshee-data/snaptrack/internal/track"
)

// Helper functions for creating pointer values
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// setupTestDB opens a fully migrated database under the test's temp
// directory and closes it on cleanup.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// makeRawSample builds a raw sample with required fields populated.
// Timestamps use millisecond precision to survive the round trip.
func makeRawSample(id, deviceID string, ts time.Time, lat, lon float64) *track.Sample {
	return &track.Sample{
		ID:        id,
		DeviceID:  deviceID,
		Timestamp: ts.Truncate(time.Millisecond),
		Point:     geo.Point{Lat: lat, Lon: lon},
		CreatedAt: ts.Truncate(time.Millisecond),
	}
}

// makeProcessedSample builds a processed sample keyed to a raw source.
func makeProcessedSample(deviceID, rawSampleID string, ts time.Time, lat, lon float64) *track.ProcessedSample {
	return &track.ProcessedSample{
		DeviceID:    deviceID,
		Timestamp:   ts.Truncate(time.Millisecond),
		Point:       geo.Point{Lat: lat, Lon: lon},
		Method:      track.MethodKalman,
		RawSampleID: rawSampleID,
		ProcessedAt: ts.Truncate(time.Millisecond),
	}
}
