// Package monitor serves debug-only chart endpoints for eyeballing the
// pipeline's output: raw versus processed points, the processing-method
// mix, and a PNG path rendering for reports. No auth; these mount under
// /debug alongside the tailsql browser.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image/color"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/snaptrack/internal/db"
	"github.com/banshee-data/snaptrack/internal/httputil"
	"github.com/banshee-data/snaptrack/internal/track"
)

// echartsAssetsPrefix is where rendered pages load the echarts runtime
// from; the upstream assets host keeps the binary free of vendored JS.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// defaultChartWindow is how far back a chart reaches when the caller
// gives no start.
const defaultChartWindow = time.Hour

const defaultMaxPoints = 5000

// viridisRamp colors the confidence dimension on scatter charts.
var viridisRamp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Charts bundles the chart handlers over one database handle.
type Charts struct {
	db *db.DB
}

func NewCharts(database *db.DB) *Charts {
	return &Charts{db: database}
}

// RegisterRoutes registers the chart endpoints on the provided mux.
func (c *Charts) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts/", c.handleIndex)
	mux.HandleFunc("/debug/charts/track", c.handleTrackChart)
	mux.HandleFunc("/debug/charts/methods", c.handleMethodsChart)
	mux.HandleFunc("/debug/charts/track.png", c.handleTrackPNG)
}

// chartWindow reads start/end as Unix seconds; end defaults to now,
// start to one window before end.
func chartWindow(r *http.Request) (time.Time, time.Time) {
	var startSec, endSec int64
	if s := r.URL.Query().Get("start"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			startSec = parsed
		}
	}
	if e := r.URL.Query().Get("end"); e != "" {
		if parsed, err := strconv.ParseInt(e, 10, 64); err == nil {
			endSec = parsed
		}
	}

	end := time.Now().UTC()
	if endSec != 0 {
		end = time.Unix(endSec, 0).UTC()
	}
	start := end.Add(-defaultChartWindow)
	if startSec != 0 {
		start = time.Unix(startSec, 0).UTC()
	}
	return start, end
}

func maxPointsParam(r *http.Request) int {
	maxPoints := defaultMaxPoints
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}
	return maxPoints
}

func (c *Charts) loadWindow(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]*track.Sample, []*track.ProcessedSample, error) {
	filter := db.SampleFilter{
		DeviceID: deviceID,
		Start:    &start,
		End:      &end,
		Limit:    limit,
	}
	raw, err := c.db.ListRawSamples(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list raw samples: %w", err)
	}
	processed, err := c.db.ListProcessedSamples(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list processed samples: %w", err)
	}
	return raw, processed, nil
}

// handleTrackChart renders raw and processed points for one device as
// an HTML scatter, processed colored by matching confidence.
func (c *Charts) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		httputil.BadRequest(w, "missing 'device_id' parameter")
		return
	}

	start, end := chartWindow(r)
	raw, processed, err := c.loadWindow(r.Context(), deviceID, start, end, maxPointsParam(r))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(raw) == 0 && len(processed) == 0 {
		httputil.NotFound(w, "no samples in window")
		return
	}

	// Bounding box over both series so the two layers share axes.
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	grow := func(lat, lon float64) {
		minLon = math.Min(minLon, lon)
		maxLon = math.Max(maxLon, lon)
		minLat = math.Min(minLat, lat)
		maxLat = math.Max(maxLat, lat)
	}

	rawData := make([]opts.ScatterData, 0, len(raw))
	for _, s := range raw {
		grow(s.Lat, s.Lon)
		rawData = append(rawData, opts.ScatterData{Value: []interface{}{s.Lon, s.Lat}})
	}
	procData := make([]opts.ScatterData, 0, len(processed))
	for _, s := range processed {
		grow(s.Lat, s.Lon)
		procData = append(procData, opts.ScatterData{Value: []interface{}{s.Lon, s.Lat, s.MatchingConfidence}})
	}

	padLon := (maxLon - minLon) * 0.05
	if padLon == 0 {
		padLon = 0.0005
	}
	padLat := (maxLat - minLat) * 0.05
	if padLat == 0 {
		padLat = 0.0005
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track Raw vs Processed", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Raw vs Processed Track", Subtitle: fmt.Sprintf("device=%s raw=%d processed=%d window=%s..%s", deviceID, len(rawData), len(procData), start.Format(time.RFC3339), end.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLon - padLon, Max: maxLon + padLon, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat - padLat, Max: maxLat + padLat, Name: "Latitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)

	scatter.AddSeries("raw", rawData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("processed", procData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 7}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleMethodsChart renders the processing-method mix for one device
// as an HTML bar chart. A rising kalman_fallback bar is the quickest
// visual cue that the map matcher is in trouble.
func (c *Charts) handleMethodsChart(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		httputil.BadRequest(w, "missing 'device_id' parameter")
		return
	}

	start, end := chartWindow(r)
	counts, err := c.db.MethodCounts(r.Context(), deviceID, &start, &end)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to get method counts: %v", err))
		return
	}

	methods := []track.Method{track.MethodRawFirst, track.MethodKalman, track.MethodOSRM, track.MethodKalmanFallback}
	x := make([]string, 0, len(methods))
	y := make([]opts.BarData, 0, len(methods))
	for _, m := range methods {
		x = append(x, string(m))
		y = append(y, opts.BarData{Value: counts[string(m)]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Processing Method Mix", Subtitle: fmt.Sprintf("device=%s window=%s..%s", deviceID, start.Format(time.RFC3339), end.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("methods", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrackPNG renders the processed path as a PNG for embedding in
// reports.
func (c *Charts) handleTrackPNG(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		httputil.BadRequest(w, "missing 'device_id' parameter")
		return
	}

	start, end := chartWindow(r)
	_, processed, err := c.loadWindow(r.Context(), deviceID, start, end, maxPointsParam(r))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(processed) == 0 {
		httputil.NotFound(w, "no processed samples in window")
		return
	}

	pts := make(plotter.XYs, 0, len(processed))
	for _, s := range processed {
		pts = append(pts, plotter.XY{X: s.Lon, Y: s.Lat})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Processed Track - %s", deviceID)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	line.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	line.Width = vg.Points(1)
	points.Radius = vg.Points(2)
	p.Add(line, points)
	p.Legend.Add(deviceID, line, points)

	wt, err := p.WriterTo(16*vg.Centimeter, 16*vg.Centimeter, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Headers are gone; nothing useful left to send.
		return
	}
}

const chartsIndexHTML = `<!DOCTYPE html>
<html>
<head><title>Track Debug Charts</title></head>
<body style="font-family: monospace; background: #111; color: #ddd;">
<h2>Track debug charts %s</h2>
<ul>
  <li><a style="color:#6ece58" href="/debug/charts/track%s">raw vs processed scatter</a></li>
  <li><a style="color:#6ece58" href="/debug/charts/methods%s">processing method mix</a></li>
  <li><a style="color:#6ece58" href="/debug/charts/track.png%s">processed path (PNG)</a></li>
</ul>
<p>Params: device_id (required), start, end (Unix seconds), max_points.</p>
</body>
</html>`

// handleIndex links the charts, carrying a device_id through when one
// is given.
func (c *Charts) handleIndex(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	label := ""
	qs := ""
	if deviceID != "" {
		label = "for " + html.EscapeString(deviceID)
		qs = "?device_id=" + url.QueryEscape(deviceID)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(chartsIndexHTML, label, safeQs, safeQs, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}
