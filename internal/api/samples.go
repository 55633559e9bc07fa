package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/snaptrack/internal/db"
	"github.com/banshee-data/snaptrack/internal/httputil"
	"github.com/banshee-data/snaptrack/internal/metrics"
	"github.com/banshee-data/snaptrack/internal/track"
)

// maxListLimit caps list page sizes regardless of what the caller asks
// for.
const maxListLimit = 1000

// ingestSample accepts one raw GPS sample, stores it, and queues it for
// processing. The reply is 202: acceptance means durably stored and
// queued, not yet processed.
func (s *Server) ingestSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var sample track.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if sample.DeviceID == "" {
		httputil.BadRequest(w, "deviceId is required")
		return
	}
	if sample.Timestamp.IsZero() {
		httputil.BadRequest(w, "timestamp is required")
		return
	}
	if !sample.Valid() {
		httputil.BadRequest(w, "lat/lon outside WGS-84 bounds")
		return
	}
	if sample.Accuracy != nil && *sample.Accuracy < 0 {
		httputil.BadRequest(w, "accuracy must be >= 0")
		return
	}

	// Ids are always server-assigned so a client cannot collide with
	// the processed stream's dedup key.
	sample.ID = ""
	if err := s.db.InsertRawSample(r.Context(), &sample); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to store sample: %v", err))
		return
	}
	metrics.SamplesIngested.Inc()

	if err := s.queue.Enqueue(sample.ID); err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("stored but not queued: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":     sample.ID,
		"status": "accepted",
	})
}

func (s *Server) listRawSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	filter, err := parseSampleFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	samples, err := s.db.ListRawSamples(r.Context(), filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list raw samples: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"samples": samples,
		"count":   len(samples),
	})
}

func (s *Server) listProcessedSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	filter, err := parseSampleFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	samples, err := s.db.ListProcessedSamples(r.Context(), filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list processed samples: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"samples": samples,
		"count":   len(samples),
	})
}

// parseSampleFilter reads the shared list-endpoint query params:
// device_id, trip_id, start, end, limit, offset.
func parseSampleFilter(r *http.Request) (db.SampleFilter, error) {
	query := r.URL.Query()
	filter := db.SampleFilter{
		DeviceID: query.Get("device_id"),
		TripID:   query.Get("trip_id"),
	}

	var err error
	if filter.Start, err = parseTimeParam(query.Get("start")); err != nil {
		return filter, fmt.Errorf("invalid 'start' parameter: %v", err)
	}
	if filter.End, err = parseTimeParam(query.Get("end")); err != nil {
		return filter, fmt.Errorf("invalid 'end' parameter: %v", err)
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("invalid 'limit' parameter: %q", v)
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid 'offset' parameter: %q", v)
		}
		filter.Offset = offset
	}

	return filter, nil
}

// parseTimeParam accepts RFC 3339 or Unix seconds; empty means unset.
func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("not RFC 3339 or unix seconds: %q", v)
}
