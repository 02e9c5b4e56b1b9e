// Package metrics provides run observability for Shepherd using Prometheus
// metrics. Every collector is registered on the default registry at package
// init through promauto, so the CLI can expose them with promhttp.
//
// # Basic Usage
//
//	metrics.PagesFetched.WithLabelValues("people").Inc()
//	metrics.ThrottleSeconds.Add(wait.Seconds())
//
//	timer := metrics.NewTimer()
//	runPhase()
//	metrics.PhaseDuration.WithLabelValues("people", "success").Observe(timer.Stop().Seconds())
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shepherd"

var (
	// HTTPRequests counts API requests by status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests issued, by HTTP status code.",
	}, []string{"code"})

	// HTTPLatency tracks API request latency.
	HTTPLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "API request latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// ThrottleSeconds accumulates time spent sleeping on server throttling.
	ThrottleSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttle_seconds_total",
		Help:      "Seconds spent waiting on Retry-After responses.",
	})

	// ThrottleEvents counts 429 responses that carried a retry hint.
	ThrottleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttle_events_total",
		Help:      "Throttled responses that were retried.",
	})

	// PagesFetched counts pages decoded per endpoint.
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_fetched_total",
		Help:      "Pages fetched, by endpoint.",
	}, []string{"endpoint"})

	// SafetyValveTrips counts traversals stopped by the iteration ceiling.
	SafetyValveTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "safety_valve_trips_total",
		Help:      "Traversals ended by the iteration ceiling.",
	}, []string{"endpoint"})

	// RecordsWritten counts records handed to the writer.
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_written_total",
		Help:      "Records written, by kind.",
	}, []string{"kind"})

	// DuplicatesDropped counts records suppressed by deduplication.
	DuplicatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicates_dropped_total",
		Help:      "Records dropped as already processed, by phase.",
	}, []string{"phase"})

	// CollisionFallbacks counts synthetic ids that needed a re-hash.
	CollisionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identity_collision_fallbacks_total",
		Help:      "Synthetic id candidates that collided and were re-derived.",
	})

	// AttachmentDownloads counts attachment downloads by outcome.
	AttachmentDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attachment_downloads_total",
		Help:      "Attachment downloads, by outcome.",
	}, []string{"status"})

	// PhaseDuration tracks wall time per phase.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Phase wall time, by phase and status.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
	}, []string{"phase", "status"})
)

// Timer measures elapsed wall time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
