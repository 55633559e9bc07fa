package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/snaptrack/internal/track"
)

var testBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestInsertAndGetRawSample(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := makeRawSample("raw-1", "dev-1", testBase, 28.6129, 77.2295)
	s.TripID = strPtr("trip-9")
	s.Accuracy = floatPtr(12.5)
	s.Speed = floatPtr(4.2)
	s.Heading = floatPtr(188.0)
	s.Metadata = json.RawMessage(`{"source":"phone"}`)

	if err := db.InsertRawSample(ctx, s); err != nil {
		t.Fatalf("InsertRawSample failed: %v", err)
	}

	got, err := db.GetRawSample(ctx, "raw-1")
	if err != nil {
		t.Fatalf("GetRawSample failed: %v", err)
	}

	if got.DeviceID != "dev-1" {
		t.Errorf("deviceID = %s, want dev-1", got.DeviceID)
	}
	if got.TripID == nil || *got.TripID != "trip-9" {
		t.Errorf("tripID = %v, want trip-9", got.TripID)
	}
	if !got.Timestamp.Equal(s.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, s.Timestamp)
	}
	if got.Lat != 28.6129 || got.Lon != 77.2295 {
		t.Errorf("coords = (%v, %v), want (28.6129, 77.2295)", got.Lat, got.Lon)
	}
	if got.Accuracy == nil || *got.Accuracy != 12.5 {
		t.Errorf("accuracy = %v, want 12.5", got.Accuracy)
	}
	if got.Speed == nil || *got.Speed != 4.2 {
		t.Errorf("speed = %v, want 4.2", got.Speed)
	}
	if got.Heading == nil || *got.Heading != 188.0 {
		t.Errorf("heading = %v, want 188", got.Heading)
	}
	if string(got.Metadata) != `{"source":"phone"}` {
		t.Errorf("metadata = %s, want original JSON", got.Metadata)
	}
}

func TestGetRawSampleNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetRawSample(context.Background(), "missing")
	if !errors.Is(err, track.ErrRawSampleNotFound) {
		t.Errorf("error = %v, want ErrRawSampleNotFound", err)
	}
}

func TestInsertRawSampleAssignsIDAndCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := makeRawSample("", "dev-1", testBase, 28.6129, 77.2295)
	s.CreatedAt = time.Time{}

	if err := db.InsertRawSample(ctx, s); err != nil {
		t.Fatalf("InsertRawSample failed: %v", err)
	}
	if s.ID == "" {
		t.Fatal("ID not assigned")
	}
	if s.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not assigned")
	}

	if _, err := db.GetRawSample(ctx, s.ID); err != nil {
		t.Errorf("GetRawSample by assigned id failed: %v", err)
	}
}

func TestListRawSamples(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Two devices, interleaved times, one trip-tagged sample.
	for i := 0; i < 4; i++ {
		s := makeRawSample("", "dev-1", testBase.Add(time.Duration(i)*time.Minute), 28.6129, 77.2295)
		if i == 2 {
			s.TripID = strPtr("trip-1")
		}
		if err := db.InsertRawSample(ctx, s); err != nil {
			t.Fatalf("InsertRawSample failed: %v", err)
		}
	}
	other := makeRawSample("", "dev-2", testBase.Add(30*time.Second), 12.9716, 77.5946)
	if err := db.InsertRawSample(ctx, other); err != nil {
		t.Fatalf("InsertRawSample failed: %v", err)
	}

	t.Run("device filter", func(t *testing.T) {
		got, err := db.ListRawSamples(ctx, SampleFilter{DeviceID: "dev-1"})
		if err != nil {
			t.Fatalf("ListRawSamples failed: %v", err)
		}
		if len(got) != 4 {
			t.Fatalf("got %d samples, want 4", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp.Before(got[i-1].Timestamp) {
				t.Fatal("results not in ascending timestamp order")
			}
		}
	})

	t.Run("trip filter", func(t *testing.T) {
		got, err := db.ListRawSamples(ctx, SampleFilter{TripID: "trip-1"})
		if err != nil {
			t.Fatalf("ListRawSamples failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("got %d samples, want 1", len(got))
		}
	})

	t.Run("time range", func(t *testing.T) {
		start := testBase.Add(time.Minute)
		end := testBase.Add(2 * time.Minute)
		got, err := db.ListRawSamples(ctx, SampleFilter{DeviceID: "dev-1", Start: &start, End: &end})
		if err != nil {
			t.Fatalf("ListRawSamples failed: %v", err)
		}
		// Range is inclusive on both ends.
		if len(got) != 2 {
			t.Fatalf("got %d samples, want 2", len(got))
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		page1, err := db.ListRawSamples(ctx, SampleFilter{DeviceID: "dev-1", Limit: 3})
		if err != nil {
			t.Fatalf("ListRawSamples failed: %v", err)
		}
		page2, err := db.ListRawSamples(ctx, SampleFilter{DeviceID: "dev-1", Limit: 3, Offset: 3})
		if err != nil {
			t.Fatalf("ListRawSamples failed: %v", err)
		}
		if len(page1) != 3 || len(page2) != 1 {
			t.Fatalf("pages = (%d, %d), want (3, 1)", len(page1), len(page2))
		}
		if page1[len(page1)-1].ID == page2[0].ID {
			t.Error("pages overlap")
		}
	})
}
