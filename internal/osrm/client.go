// Package osrm is a client for the OSRM map-matching HTTP API.
//
// The client exposes exactly the slice of OSRM the pipeline consumes:
// the /match service with per-point search radii, and a health probe.
// Every failure mode degrades to echoing the input points with zero
// confidence so callers always receive a positionally-paired result.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/snaptrack/internal/geo"
	"github.com/banshee-data/snaptrack/internal/httputil"
	"github.com/banshee-data/snaptrack/internal/monitoring"
)

const (
	// MinMatchPoints is the fewest points worth sending to the
	// matcher. Shorter tracks are echoed back unmatched.
	MinMatchPoints = 3

	// EndpointRadiusMeters is the search radius for the first and
	// last points of a track.
	EndpointRadiusMeters = 25

	// DefaultRadiusMeters is the search radius for interior points
	// that carry no accuracy estimate.
	DefaultRadiusMeters = 15

	// DefaultMatchTimeout bounds a single match call.
	DefaultMatchTimeout = 5 * time.Second

	// HealthTimeout bounds the health probe.
	HealthTimeout = 5 * time.Second

	codeOk = "Ok"
)

// TracePoint is one input point for map matching.
type TracePoint struct {
	Point    geo.Point
	Time     time.Time
	Accuracy *float64 // meters, nil when the device reported none
}

// MatchedPoint is one output point, paired positionally with its
// input.
type MatchedPoint struct {
	Point      geo.Point
	Confidence float64 // [0,1]; 0 for unmatched or echoed points
}

// Config configures a Client.
type Config struct {
	// BaseURL is the root of the OSRM instance, for example
	// "http://localhost:5000".
	BaseURL string

	// Client is the HTTP client used for requests. Defaults to a
	// standard client with MatchTimeout as its overall timeout.
	Client httputil.HTTPClient

	// MatchTimeout bounds a single match call. Defaults to
	// DefaultMatchTimeout.
	MatchTimeout time.Duration
}

// Validate checks required fields and fills defaults in place.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("osrm: base URL is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MatchTimeout <= 0 {
		c.MatchTimeout = DefaultMatchTimeout
	}
	if c.Client == nil {
		c.Client = httputil.NewStandardClient(&http.Client{Timeout: c.MatchTimeout})
	}
	return nil
}

// Client calls an OSRM instance.
type Client struct {
	baseURL      string
	client       httputil.HTTPClient
	matchTimeout time.Duration
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		client:       cfg.Client,
		matchTimeout: cfg.MatchTimeout,
	}, nil
}

// Match snaps an ordered track to the road network. The result always
// has the same length and order as the input.
//
// Tracks shorter than MinMatchPoints are echoed with zero confidence
// without calling the matcher. A response code other than Ok, and any
// individual null tracepoint, likewise echo the affected inputs with
// zero confidence; neither is an error. Transport failures, timeouts,
// unexpected statuses and unparseable payloads echo the whole input
// AND return the underlying error so callers can distinguish "no
// match found" from "matcher broken".
func (c *Client) Match(ctx context.Context, points []TracePoint) ([]MatchedPoint, error) {
	if len(points) < MinMatchPoints {
		return echoInputs(points), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.matchTimeout)
	defer cancel()

	mr, err := c.do(ctx, c.matchURL(points))
	if err != nil {
		return echoInputs(points), err
	}
	if mr.Code != codeOk {
		monitoring.Logf("osrm: match returned code %q for %d points", mr.Code, len(points))
		return echoInputs(points), nil
	}

	// The source assigns every matched point the confidence of the
	// first matching group rather than a per-leg value.
	var confidence float64
	if len(mr.Matchings) > 0 {
		confidence = mr.Matchings[0].Confidence
	}

	out := make([]MatchedPoint, len(points))
	for i, p := range points {
		if i < len(mr.Tracepoints) && mr.Tracepoints[i] != nil {
			tp := mr.Tracepoints[i]
			out[i] = MatchedPoint{
				Point:      geo.Point{Lat: tp.Location[1], Lon: tp.Location[0]},
				Confidence: confidence,
			}
			continue
		}
		out[i] = MatchedPoint{Point: p.Point}
	}
	return out, nil
}

// Healthy reports whether the matcher answers a constant two-point
// match call within HealthTimeout.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	now := time.Now()
	probe := []TracePoint{
		{Point: geo.Point{Lat: 28.6129, Lon: 77.2295}, Time: now},
		{Point: geo.Point{Lat: 28.6132, Lon: 77.2298}, Time: now.Add(5 * time.Second)},
	}
	mr, err := c.do(ctx, c.matchURL(probe))
	if err != nil {
		monitoring.Logf("osrm: health probe failed: %v", err)
		return false
	}
	return mr.Code == codeOk
}

type matchResponse struct {
	Code        string        `json:"code"`
	Matchings   []matching    `json:"matchings"`
	Tracepoints []*tracepoint `json:"tracepoints"`
}

type matching struct {
	Confidence float64 `json:"confidence"`
}

type tracepoint struct {
	Location [2]float64 `json:"location"` // lon, lat
}

// do issues one match request and decodes the response. OSRM reports
// protocol-level outcomes such as NoMatch with HTTP 400, so both 200
// and 400 bodies are decoded; everything else is an error.
func (c *Client) do(ctx context.Context, url string) (*matchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build match request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("match request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read match response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, fmt.Errorf("match request: unexpected status %d", resp.StatusCode)
	}

	var mr matchResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("decode match response: %w", err)
	}
	return &mr, nil
}

// matchURL builds the match request URL. Coordinates go in the path as
// lon,lat pairs; timestamps and radii are semicolon-joined query
// values paired positionally with the coordinates.
func (c *Client) matchURL(points []TracePoint) string {
	var sb strings.Builder
	sb.WriteString(c.baseURL)
	sb.WriteString("/match/v1/driving/")
	for i, p := range points {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.FormatFloat(p.Point.Lon, 'f', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p.Point.Lat, 'f', -1, 64))
	}
	sb.WriteString("?timestamps=")
	for i, p := range points {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.FormatInt(p.Time.Unix(), 10))
	}
	sb.WriteString("&radiuses=")
	for i := range points {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.Itoa(searchRadius(points, i)))
	}
	sb.WriteString("&overview=full&steps=true&gaps=ignore&tidy=true")
	return sb.String()
}

// searchRadius picks the per-point search radius: endpoints get a wide
// fixed radius, interior points use the device-reported accuracy when
// available.
func searchRadius(points []TracePoint, i int) int {
	if i == 0 || i == len(points)-1 {
		return EndpointRadiusMeters
	}
	if acc := points[i].Accuracy; acc != nil {
		return int(math.Round(*acc))
	}
	return DefaultRadiusMeters
}

func echoInputs(points []TracePoint) []MatchedPoint {
	out := make([]MatchedPoint, len(points))
	for i, p := range points {
		out[i] = MatchedPoint{Point: p.Point}
	}
	return out
}
