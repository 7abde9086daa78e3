// Package metrics exposes Prometheus collectors for the trendwatch service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	discoveryPagesTotal        *prometheus.CounterVec
	discoveryHostsTotal        prometheus.Counter
	snapshotsWrittenTotal      *prometheus.CounterVec
	saleEventsTotal            *prometheus.CounterVec
	fetchRetriesTotal          prometheus.Counter
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineStageSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_discovery_pages_total",
				Help: "Total number of pages visited during discovery, labeled by status.",
			},
			[]string{"status"},
		)

		discoveryHostsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trendwatch_discovery_hosts_total",
				Help: "Total number of storefront hosts identified during discovery.",
			},
		)

		snapshotsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_snapshots_written_total",
				Help: "Total number of catalog snapshots persisted, labeled by source.",
			},
			[]string{"source"},
		)

		saleEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_sale_events_total",
				Help: "Total number of inferred sale events, labeled by store.",
			},
			[]string{"store"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trendwatch_fetch_retries_total",
				Help: "Total number of HTTP fetch attempts retried after a transient failure.",
			},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		pipelineStageSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendwatch_pipeline_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDiscoveryPage increments the discovery page counter for the given status.
func ObserveDiscoveryPage(status string) {
	discoveryPagesTotal.WithLabelValues(status).Inc()
}

// ObserveHostDiscovered increments the discovered host counter.
func ObserveHostDiscovered() {
	discoveryHostsTotal.Inc()
}

// ObserveSnapshot increments the snapshot counter for the given source.
func ObserveSnapshot(source string) {
	snapshotsWrittenTotal.WithLabelValues(source).Inc()
}

// ObserveSaleEvents adds n inferred sale events for the given store.
func ObserveSaleEvents(store string, n int) {
	if n > 0 {
		saleEventsTotal.WithLabelValues(store).Add(float64(n))
	}
}

// ObserveFetchRetry increments the fetch retry counter.
func ObserveFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveRun increments the pipeline run counter for the given outcome.
func ObserveRun(status string) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	pipelineStageSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
