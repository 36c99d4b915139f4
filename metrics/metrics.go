// Package metrics exposes Prometheus instrumentation for the job pipeline
// (spec §10.3): a phase-duration histogram, in-flight gauges, and
// per-dependency retry/failure counters for the object store, catalog, and
// chat clients.
//
// Grounded on the teacher's metrics/metrics.go (ClientMetrics shape,
// promauto registration style, Version-on-startup pattern) and
// metrics/monitor_request.go (MonitorRequest/HttpRetryHook retry-counting),
// slimmed to the job-pipeline concerns this system actually has.
package metrics

import (
	"github.com/archivekit/vaultline/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics is the retry/failure/duration triple the teacher attaches
// to every outbound HTTP-backed dependency.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func newClientMetrics(name string) ClientMetrics {
	return ClientMetrics{
		RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: name + "_retry_count",
			Help: "Number of retries on the most recent request to " + name,
		}, []string{"host"}),
		FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: name + "_failure_count",
			Help: "Number of failed requests to " + name,
		}, []string{"host", "status_code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name + "_request_duration_seconds",
			Help:    "Latency of requests to " + name,
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"host"}),
	}
}

// PipelineMetrics is the process-wide metrics registry (spec §10.3).
type PipelineMetrics struct {
	Version *prometheus.CounterVec

	JobsInFlight         prometheus.Gauge
	HTTPRequestsInFlight prometheus.Gauge

	PhaseDuration  *prometheus.HistogramVec
	RetryCount     *prometheus.CounterVec
	DedupSkipCount prometheus.Counter
	FallbackCount  prometheus.Counter
	JobOutcomes    *prometheus.CounterVec

	ObjectStoreClient ClientMetrics
	CatalogClient     ClientMetrics
	ChatClient        ClientMetrics
}

func NewMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		// Fired once on startup to let us check which version of this service we're running
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current Git SHA / Tag that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "A count of the ingestion jobs currently in flight",
		}),
		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "A count of the HTTP requests in flight against the intake server",
		}),

		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_phase_duration_seconds",
			Help:    "Time spent in each job coordinator phase",
			Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"phase"}),
		RetryCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "job_retry_count",
			Help: "Number of job attempts retried, broken down by the dependency whose failure triggered the retry",
		}, []string{"dependency"}),
		DedupSkipCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "job_dedup_skip_count",
			Help: "Number of jobs whose dedup probe found an existing transcribed page and were skipped",
		}),
		FallbackCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "job_fallback_count",
			Help: "Number of jobs that dropped from the streaming acquire+transcribe path into the whole-file fallback path",
		}),
		JobOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "job_outcome_count",
			Help: "Terminal job outcomes broken down by result",
		}, []string{"outcome"}),

		ObjectStoreClient: newClientMetrics("object_store_client"),
		CatalogClient:     newClientMetrics("catalog_client"),
		ChatClient:        newClientMetrics("chat_client"),
	}

	// Fire a metric a single time to let us track the version of the app we're using
	m.Version.WithLabelValues("vaultline", config.Version).Inc()

	return m
}

var Metrics = NewMetrics()
