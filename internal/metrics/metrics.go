// Package metrics holds the process-wide Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snaptrack_build_info",
		Help: "Build information of the track pipeline daemon.",
	}, []string{"version"})

	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrack_queue_jobs_enqueued_total", Help: "Enqueue requests by result.",
	}, []string{"result"})
	JobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrack_queue_job_outcomes_total", Help: "Completed jobs by processing outcome.",
	}, []string{"outcome"})
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrack_queue_job_retries_total", Help: "Job attempts beyond the first.",
	})
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrack_queue_jobs_failed_total", Help: "Jobs exhausted or non-retriable, moved to the failed set.",
	})
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snaptrack_queue_jobs_inflight", Help: "Jobs currently queued or running.",
	})
	WorkersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snaptrack_queue_workers_running", Help: "Workers currently executing a job.",
	})
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snaptrack_queue_job_duration_seconds",
		Help:    "Wall time of a job from first start to final outcome, retries included.",
		Buckets: prometheus.DefBuckets,
	})

	SamplesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptrack_track_samples_processed_total", Help: "Emitted processed samples by processing method.",
	}, []string{"method"})
	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snaptrack_track_osrm_match_duration_seconds",
		Help:    "Wall time of map-matching calls, including failed ones.",
		Buckets: prometheus.DefBuckets,
	})

	SamplesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptrack_api_samples_ingested_total", Help: "Raw samples accepted by the ingest endpoint.",
	})
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snaptrack_api_stream_subscribers", Help: "Connected live-stream subscribers.",
	})
)
