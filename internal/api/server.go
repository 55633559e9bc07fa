// Package api serves the track pipeline's HTTP surface: sample
// ingestion, raw and processed reads, per-device stats, the live
// stream, and operational endpoints.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/snaptrack/internal/db"
	"github.com/banshee-data/snaptrack/internal/httputil"
	"github.com/banshee-data/snaptrack/internal/jobqueue"
	"github.com/banshee-data/snaptrack/internal/timeutil"
	"github.com/banshee-data/snaptrack/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// matcherProbeInterval caps how often the health endpoint re-probes the
// map matcher; requests inside the window reuse the cached verdict.
const matcherProbeInterval = 5 * time.Second

// HealthProber reports whether the map matcher is reachable and
// answering. *osrm.Client satisfies it.
type HealthProber interface {
	Healthy(ctx context.Context) bool
}

type Server struct {
	db     *db.DB
	queue  *jobqueue.Queue
	prober HealthProber
	stream *Broadcaster
	clock  timeutil.Clock
	units  string

	probeMu      sync.Mutex
	probedAt     time.Time
	probeHealthy bool
}

func NewServer(database *db.DB, queue *jobqueue.Queue, prober HealthProber, stream *Broadcaster, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{
		db:     database,
		queue:  queue,
		prober: prober,
		stream: stream,
		clock:  timeutil.RealClock{},
		units:  speedUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/samples", s.ingestSample)
	mux.HandleFunc("/api/samples/raw", s.listRawSamples)
	mux.HandleFunc("/api/samples/processed", s.listProcessedSamples)
	mux.HandleFunc("/api/devices/", s.handleDevice)
	mux.HandleFunc("/api/stream", s.streamSamples)
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/queue/stats", s.showQueueStats)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) showQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.queue.Stats())
}

// matcherHealth returns the cached probe verdict, refreshing it when
// the cache is older than matcherProbeInterval.
func (s *Server) matcherHealth(ctx context.Context) (bool, time.Time) {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()

	now := s.clock.Now()
	if s.probedAt.IsZero() || now.Sub(s.probedAt) >= matcherProbeInterval {
		s.probeHealthy = s.prober.Healthy(ctx)
		s.probedAt = now
	}
	return s.probeHealthy, s.probedAt
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	healthy, probedAt := s.matcherHealth(r.Context())
	status := "ok"
	if !healthy {
		status = "degraded"
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": status,
		"matcher": map[string]interface{}{
			"healthy":   healthy,
			"checkedAt": probedAt.UTC(),
		},
		"queue": s.queue.Stats(),
	})
}

// AttachAdminRoutes adds the map-matcher probe verdict to the /debug
// index so operators can check matcher reachability at a glance.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("map-matcher", func() interface{} {
		healthy, probedAt := s.matcherHealth(context.Background())
		state := "unreachable"
		if healthy {
			state = "healthy"
		}
		return fmt.Sprintf("%s (checked %s ago)", state, s.clock.Since(probedAt).Round(time.Second))
	})
}
