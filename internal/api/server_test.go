package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/snaptrack/internal/timeutil"
)

type fakeProber struct {
	mu      sync.Mutex
	healthy bool
	calls   int
}

func (p *fakeProber) Healthy(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.healthy
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestShowHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	server.showHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body struct {
		Status  string `json:"status"`
		Matcher struct {
			Healthy   bool      `json:"healthy"`
			CheckedAt time.Time `json:"checkedAt"`
		} `json:"matcher"`
		Queue struct {
			Enqueued uint64 `json:"enqueued"`
		} `json:"queue"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Errorf("Expected status ok, got %q", body.Status)
	}
	if !body.Matcher.Healthy {
		t.Error("Expected matcher healthy")
	}
	if body.Matcher.CheckedAt.IsZero() {
		t.Error("Expected checkedAt to be set")
	}
}

func TestShowHealthDegraded(t *testing.T) {
	server, _ := setupTestServer(t)
	server.prober = &fakeProber{healthy: false}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	server.showHealth(w, req)

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("Expected status degraded, got %q", body.Status)
	}
}

// TestShowHealthCachesProbe verifies the matcher probe runs at most
// once per interval regardless of request rate.
func TestShowHealthCachesProbe(t *testing.T) {
	server, _ := setupTestServer(t)
	prober := &fakeProber{healthy: true}
	server.prober = prober
	clock := timeutil.NewMockClock(testBase)
	server.clock = clock

	get := func() {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		server.showHealth(httptest.NewRecorder(), req)
	}

	get()
	get()
	get()
	if got := prober.callCount(); got != 1 {
		t.Errorf("Expected 1 probe for requests inside the interval, got %d", got)
	}

	// At exactly the interval boundary the cache is stale.
	clock.Advance(matcherProbeInterval)
	get()
	if got := prober.callCount(); got != 2 {
		t.Errorf("Expected re-probe after interval, got %d probes", got)
	}

	clock.Advance(matcherProbeInterval - time.Second)
	get()
	if got := prober.callCount(); got != 2 {
		t.Errorf("Expected cached verdict inside second interval, got %d probes", got)
	}
}

func TestShowQueueStats(t *testing.T) {
	server, _ := setupTestServer(t)

	if err := server.queue.Enqueue("job-1"); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	w := httptest.NewRecorder()
	server.showQueueStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var stats struct {
		Enqueued uint64 `json:"enqueued"`
	}
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.Enqueued != 1 {
		t.Errorf("Expected 1 enqueued, got %d", stats.Enqueued)
	}
}

// TestServeMuxRoutes checks every route is registered; anything
// answering 404 here fell off the mux.
func TestServeMuxRoutes(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/samples"},
		{http.MethodGet, "/api/samples/raw"},
		{http.MethodGet, "/api/samples/processed"},
		{http.MethodGet, "/api/devices/dev-1/latest"},
		{http.MethodGet, "/api/devices/dev-1/stats"},
		{http.MethodGet, "/api/health"},
		{http.MethodGet, "/api/queue/stats"},
		{http.MethodGet, "/metrics"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, strings.NewReader("{}"))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code == http.StatusNotFound {
				t.Errorf("Route %s %s not registered", route.method, route.path)
			}
		})
	}
}

func TestMethodChecks(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	checks := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/samples"},
		{http.MethodPost, "/api/samples/raw"},
		{http.MethodPost, "/api/samples/processed"},
		{http.MethodPost, "/api/devices/dev-1/latest"},
		{http.MethodPost, "/api/health"},
		{http.MethodPost, "/api/queue/stats"},
		{http.MethodPost, "/api/stream"},
	}

	for _, check := range checks {
		t.Run(check.method+" "+check.path, func(t *testing.T) {
			req := httptest.NewRequest(check.method, check.path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected status 405, got %d", w.Code)
			}
		})
	}
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{302, colorYellow + "302" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{500, colorBoldRed + "500" + colorReset},
		{100, "100"},
	}

	for _, tt := range tests {
		if got := statusCodeColor(tt.code); got != tt.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
}

// TestAttachAdminRoutes verifies the debug index is registered. It may
// answer 403 behind the access check, but never 404.
func TestAttachAdminRoutes(t *testing.T) {
	server, _ := setupTestServer(t)

	mux := http.NewServeMux()
	server.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code == http.StatusNotFound {
		t.Error("debug index not registered")
	}
}
