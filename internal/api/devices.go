package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/snaptrack/internal/httputil"
	"github.com/banshee-data/snaptrack/internal/track"
	"github.com/banshee-data/snaptrack/internal/units"
)

// handleDevice routes /api/devices/{device_id}/{action}.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/devices/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" {
		httputil.BadRequest(w, "expected /api/devices/{device_id}/latest or /stats")
		return
	}
	deviceID := pathParts[0]

	switch pathParts[1] {
	case "latest":
		s.showDeviceLatest(w, r, deviceID)
	case "stats":
		s.showDeviceStats(w, r, deviceID)
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown device action %q", pathParts[1]))
	}
}

func (s *Server) showDeviceLatest(w http.ResponseWriter, r *http.Request, deviceID string) {
	latest, err := s.db.FindLatestProcessed(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, track.ErrNoProcessedSample) {
			httputil.NotFound(w, fmt.Sprintf("no processed samples for device %q", deviceID))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to load latest sample: %v", err))
		return
	}
	httputil.WriteJSONOK(w, latest)
}

// DeviceStats summarizes a device's processed stream over a window.
// Speeds are converted to the requested units; distance stays in
// meters.
type DeviceStats struct {
	DeviceID       string     `json:"deviceId"`
	Count          int        `json:"count"`
	DistanceMeters float64    `json:"distanceMeters"`
	Units          string     `json:"units"`
	MeanSpeed      float64    `json:"meanSpeed"`
	P50Speed       float64    `json:"p50Speed"`
	P85Speed       float64    `json:"p85Speed"`
	P95Speed       float64    `json:"p95Speed"`
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
}

func (s *Server) showDeviceStats(w http.ResponseWriter, r *http.Request, deviceID string) {
	query := r.URL.Query()

	start, err := parseTimeParam(query.Get("start"))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid 'start' parameter: %v", err))
		return
	}
	end, err := parseTimeParam(query.Get("end"))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid 'end' parameter: %v", err))
		return
	}

	targetUnits := s.units
	if u := query.Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'units' parameter: must be one of %s", units.GetValidUnitsString()))
			return
		}
		targetUnits = u
	}

	speeds, totalDistance, err := s.db.DeviceSpeeds(r.Context(), deviceID, start, end)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute device stats: %v", err))
		return
	}

	stats := DeviceStats{
		DeviceID:       deviceID,
		Count:          len(speeds),
		DistanceMeters: totalDistance,
		Units:          targetUnits,
		Start:          start,
		End:            end,
	}
	if len(speeds) > 0 {
		sort.Float64s(speeds)
		stats.MeanSpeed = units.ConvertSpeed(stat.Mean(speeds, nil), targetUnits)
		stats.P50Speed = units.ConvertSpeed(stat.Quantile(0.50, stat.Empirical, speeds, nil), targetUnits)
		stats.P85Speed = units.ConvertSpeed(stat.Quantile(0.85, stat.Empirical, speeds, nil), targetUnits)
		stats.P95Speed = units.ConvertSpeed(stat.Quantile(0.95, stat.Empirical, speeds, nil), targetUnits)
	}

	httputil.WriteJSONOK(w, stats)
}
