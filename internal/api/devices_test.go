package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/snaptrack/internal/track"
)

func TestShowDeviceLatest(t *testing.T) {
	server, database := setupTestServer(t)

	seedProcessed(t, database, "dev-1", testBase, 1.0, 30)
	newest := seedProcessed(t, database, "dev-1", testBase.Add(time.Minute), 2.0, 60)
	seedProcessed(t, database, "dev-2", testBase.Add(time.Hour), 3.0, 90)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/dev-1/latest", nil)
	w := httptest.NewRecorder()
	server.handleDevice(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var got track.ProcessedSample
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.ID != newest.ID {
		t.Errorf("Expected sample %s, got %s", newest.ID, got.ID)
	}
	if got.DeviceID != "dev-1" {
		t.Errorf("Expected device dev-1, got %s", got.DeviceID)
	}
}

func TestShowDeviceLatestNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/ghost/latest", nil)
	w := httptest.NewRecorder()
	server.handleDevice(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandleDevicePathErrors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing action", "/api/devices/dev-1", http.StatusBadRequest},
		{"empty device", "/api/devices//latest", http.StatusBadRequest},
		{"unknown action", "/api/devices/dev-1/history", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			server.handleDevice(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func getDeviceStats(t *testing.T, server *Server, url string) (DeviceStats, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	server.handleDevice(w, req)

	var stats DeviceStats
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return stats, w
}

func TestShowDeviceStats(t *testing.T) {
	server, database := setupTestServer(t)

	// Speeds 1..10 m/s, 10 m apart.
	for i := 1; i <= 10; i++ {
		seedProcessed(t, database, "dev-1", testBase.Add(time.Duration(i)*time.Minute), float64(i), 10)
	}

	stats, w := getDeviceStats(t, server, "/api/devices/dev-1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if stats.DeviceID != "dev-1" {
		t.Errorf("Expected device dev-1, got %s", stats.DeviceID)
	}
	if stats.Count != 10 {
		t.Errorf("Expected 10 samples, got %d", stats.Count)
	}
	if math.Abs(stats.DistanceMeters-100) > 1e-9 {
		t.Errorf("Expected 100 m total distance, got %v", stats.DistanceMeters)
	}
	if stats.Units != "mps" {
		t.Errorf("Expected mps units, got %s", stats.Units)
	}
	if math.Abs(stats.MeanSpeed-5.5) > 1e-9 {
		t.Errorf("Expected mean speed 5.5, got %v", stats.MeanSpeed)
	}
	if stats.P50Speed != 5 {
		t.Errorf("Expected P50 = 5, got %v", stats.P50Speed)
	}
	if stats.P85Speed != 9 {
		t.Errorf("Expected P85 = 9, got %v", stats.P85Speed)
	}
	if stats.P95Speed != 10 {
		t.Errorf("Expected P95 = 10, got %v", stats.P95Speed)
	}
}

func TestShowDeviceStatsUnits(t *testing.T) {
	server, database := setupTestServer(t)

	seedProcessed(t, database, "dev-1", testBase, 10.0, 50)

	stats, w := getDeviceStats(t, server, "/api/devices/dev-1/stats?units=mph")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if stats.Units != "mph" {
		t.Errorf("Expected mph units, got %s", stats.Units)
	}
	if math.Abs(stats.MeanSpeed-22.3694) > 0.01 {
		t.Errorf("Expected ~22.37 mph, got %v", stats.MeanSpeed)
	}
	// Distance is not unit-converted.
	if math.Abs(stats.DistanceMeters-50) > 1e-9 {
		t.Errorf("Expected 50 m, got %v", stats.DistanceMeters)
	}
}

func TestShowDeviceStatsInvalidUnits(t *testing.T) {
	server, _ := setupTestServer(t)

	_, w := getDeviceStats(t, server, "/api/devices/dev-1/stats?units=furlongs")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestShowDeviceStatsTimeWindow(t *testing.T) {
	server, database := setupTestServer(t)

	seedProcessed(t, database, "dev-1", testBase, 1.0, 10)
	seedProcessed(t, database, "dev-1", testBase.Add(time.Minute), 2.0, 10)
	// Outlier outside the window must not move the percentiles.
	seedProcessed(t, database, "dev-1", testBase.Add(time.Hour), 100.0, 1000)

	url := fmt.Sprintf("/api/devices/dev-1/stats?start=%d&end=%d",
		testBase.Unix(), testBase.Add(2*time.Minute).Unix())
	stats, w := getDeviceStats(t, server, url)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if stats.Count != 2 {
		t.Errorf("Expected 2 samples in window, got %d", stats.Count)
	}
	if stats.P95Speed != 2 {
		t.Errorf("Expected P95 = 2 inside window, got %v", stats.P95Speed)
	}
	if math.Abs(stats.DistanceMeters-20) > 1e-9 {
		t.Errorf("Expected 20 m in window, got %v", stats.DistanceMeters)
	}
}

// TestShowDeviceStatsEmpty checks an empty window reports zeros rather
// than NaN from an empty percentile input.
func TestShowDeviceStatsEmpty(t *testing.T) {
	server, _ := setupTestServer(t)

	stats, w := getDeviceStats(t, server, "/api/devices/ghost/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if stats.Count != 0 {
		t.Errorf("Expected count 0, got %d", stats.Count)
	}
	if stats.MeanSpeed != 0 || stats.P50Speed != 0 || stats.P95Speed != 0 {
		t.Errorf("Expected zero speeds, got %+v", stats)
	}
}
