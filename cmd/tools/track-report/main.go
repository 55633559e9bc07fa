// Command track-report renders an offline HTML report for one
// device's processed track.
//
// It reads the processed stream straight from a snaptrack database
// file, prints summary statistics to stdout, and writes a standalone
// echarts page with the cleaned path, the speed profile, and the
// processing method mix.
//
// Usage:
//
//	go run ./cmd/tools/track-report [flags]
//
// Flags:
//
//	-db        Path to the sqlite database (default: snaptrack.db)
//	-device    Device id to report on (required)
//	-trip      Restrict the report to one trip id
//	-start     Window start (RFC3339)
//	-end       Window end (RFC3339)
//	-limit     Maximum samples to load (default: 5000)
//	-out       Output HTML path (default: track-report.html)
//	-units     Speed units: mps, mph, kmph or kph (default: mps)
//	-timezone  IANA timezone for displayed times (default: UTC)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/snaptrack/internal/db"
	"github.com/banshee-data/snaptrack/internal/track"
	"github.com/banshee-data/snaptrack/internal/units"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisRamp colors the confidence dimension on the path scatter.
var viridisRamp = []string{"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"}

func main() {
	var dbPath string
	var deviceID string
	var tripID string
	var startStr string
	var endStr string
	var limit int
	var outPath string
	var speedUnits string
	var timezone string

	flag.StringVar(&dbPath, "db", "snaptrack.db", "path to sqlite db")
	flag.StringVar(&deviceID, "device", "", "device id to report on (required)")
	flag.StringVar(&tripID, "trip", "", "restrict the report to one trip id")
	flag.StringVar(&startStr, "start", "", "window start (RFC3339)")
	flag.StringVar(&endStr, "end", "", "window end (RFC3339)")
	flag.IntVar(&limit, "limit", 5000, "maximum samples to load")
	flag.StringVar(&outPath, "out", "track-report.html", "output HTML path")
	flag.StringVar(&speedUnits, "units", units.MPS, "speed units: mps, mph, kmph or kph")
	flag.StringVar(&timezone, "timezone", "UTC", "IANA timezone for displayed times")
	flag.Parse()

	if deviceID == "" {
		log.Fatal("Error: -device flag is required")
	}
	if !units.IsValid(speedUnits) {
		log.Fatalf("Error: invalid units %q (valid: %s)", speedUnits, units.GetValidUnitsString())
	}
	if !units.IsTimezoneValid(timezone) {
		log.Fatalf("Error: invalid timezone %q", timezone)
	}

	filter := db.SampleFilter{DeviceID: deviceID, TripID: tripID, Limit: limit}
	if startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			log.Fatalf("Error: invalid start: %v", err)
		}
		filter.Start = &t
	}
	if endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			log.Fatalf("Error: invalid end: %v", err)
		}
		filter.End = &t
	}

	// OpenDB rather than NewDB: a report never migrates the file it
	// reads.
	database, err := db.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Error opening db: %v", err)
	}
	defer database.Close()

	samples, err := database.ListProcessedSamples(context.Background(), filter)
	if err != nil {
		log.Fatalf("Error loading processed samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("No processed samples for device %q in the requested window", deviceID)
	}

	stats := summarise(samples)
	printSummary(os.Stdout, deviceID, stats, speedUnits, timezone)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(
		pathChart(deviceID, samples),
		speedChart(deviceID, samples, speedUnits, timezone),
		methodChart(deviceID, stats.methodCounts),
	)

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("Error creating %s: %v", outPath, err)
	}
	if err := page.Render(out); err != nil {
		out.Close()
		log.Fatalf("Error rendering report: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("Error writing %s: %v", outPath, err)
	}
	fmt.Printf("report written to %s\n", outPath)
}

// trackStats aggregates the loaded window for the stdout summary and
// the method mix chart.
type trackStats struct {
	first, last   time.Time
	totalDistance float64
	maxSpeed      float64
	meanSpeed     float64
	movingSeconds float64
	methodCounts  map[track.Method]int
	matchedMean   float64
}

func summarise(samples []*track.ProcessedSample) trackStats {
	st := trackStats{
		first:        samples[0].Timestamp,
		last:         samples[len(samples)-1].Timestamp,
		methodCounts: make(map[track.Method]int),
	}

	var speedSum float64
	var matchedSum float64
	var matched int
	for _, s := range samples {
		st.totalDistance += s.Distance
		if s.Speed > st.maxSpeed {
			st.maxSpeed = s.Speed
		}
		speedSum += s.Speed
		if s.Speed > 0 {
			st.movingSeconds += s.TimeDiffSeconds
		}
		st.methodCounts[s.Method]++
		if s.Method == track.MethodOSRM {
			matchedSum += s.MatchingConfidence
			matched++
		}
	}
	st.meanSpeed = speedSum / float64(len(samples))
	if matched > 0 {
		st.matchedMean = matchedSum / float64(matched)
	}
	return st
}

func printSummary(w *os.File, deviceID string, st trackStats, speedUnits, timezone string) {
	label := units.GetTimezoneLabel(timezone)
	first, err := units.ConvertTime(st.first, timezone)
	if err != nil {
		first = st.first
	}
	last, err := units.ConvertTime(st.last, timezone)
	if err != nil {
		last = st.last
	}

	total := 0
	for _, n := range st.methodCounts {
		total += n
	}

	fmt.Fprintf(w, "device:        %s\n", deviceID)
	fmt.Fprintf(w, "samples:       %d\n", total)
	fmt.Fprintf(w, "window:        %s .. %s (%s)\n",
		first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"), label)
	fmt.Fprintf(w, "distance:      %.1f m\n", st.totalDistance)
	fmt.Fprintf(w, "moving time:   %s\n", time.Duration(st.movingSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(w, "mean speed:    %.2f %s\n", units.ConvertSpeed(st.meanSpeed, speedUnits), speedUnits)
	fmt.Fprintf(w, "max speed:     %.2f %s\n", units.ConvertSpeed(st.maxSpeed, speedUnits), speedUnits)
	for _, m := range []track.Method{track.MethodRawFirst, track.MethodKalman, track.MethodOSRM, track.MethodKalmanFallback} {
		if n := st.methodCounts[m]; n > 0 {
			fmt.Fprintf(w, "  %-16s %d (%.1f%%)\n", string(m), n, 100*float64(n)/float64(total))
		}
	}
	if st.matchedMean > 0 {
		fmt.Fprintf(w, "osrm mean confidence: %.2f\n", st.matchedMean)
	}
}

func pathChart(deviceID string, samples []*track.ProcessedSample) *charts.Scatter {
	minLat, maxLat := samples[0].Lat, samples[0].Lat
	minLon, maxLon := samples[0].Lon, samples[0].Lon
	data := make([]opts.ScatterData, 0, len(samples))
	for _, s := range samples {
		minLat = math.Min(minLat, s.Lat)
		maxLat = math.Max(maxLat, s.Lat)
		minLon = math.Min(minLon, s.Lon)
		maxLon = math.Max(maxLon, s.Lon)
		data = append(data, opts.ScatterData{Value: []interface{}{s.Lon, s.Lat, s.MatchingConfidence}})
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
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Processed Path", Subtitle: fmt.Sprintf("device=%s points=%d", deviceID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLon - padLon, Max: maxLon + padLon, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat - padLat, Max: maxLat + padLat, Name: "Latitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			Text:       []string{"confidence 1", "0"},
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)
	scatter.AddSeries("path", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}

func speedChart(deviceID string, samples []*track.ProcessedSample, speedUnits, timezone string) *charts.Line {
	x := make([]string, 0, len(samples))
	y := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		ts, err := units.ConvertTime(s.Timestamp, timezone)
		if err != nil {
			ts = s.Timestamp
		}
		x = append(x, ts.Format("15:04:05"))
		y = append(y, opts.LineData{Value: units.ConvertSpeed(s.Speed, speedUnits)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Speed Over Time", Subtitle: fmt.Sprintf("device=%s units=%s tz=%s", deviceID, speedUnits, units.GetTimezoneLabel(timezone))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: speedUnits}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("speed", y, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func methodChart(deviceID string, counts map[track.Method]int) *charts.Bar {
	methods := []track.Method{track.MethodRawFirst, track.MethodKalman, track.MethodOSRM, track.MethodKalmanFallback}
	x := make([]string, 0, len(methods))
	y := make([]opts.BarData, 0, len(methods))
	for _, m := range methods {
		x = append(x, string(m))
		y = append(y, opts.BarData{Value: counts[m]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Processing Method Mix", Subtitle: fmt.Sprintf("device=%s", deviceID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("methods", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
