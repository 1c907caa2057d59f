package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. The fallback counters
// are the operational window into the fail-open persistence policy: a rising
// rate means the durable collaborator is degraded and the trail is running
// from memory.
type Metrics struct {
	EventsRecorded   prometheus.Counter
	ConsentsRecorded prometheus.Counter
	PersistFailures  prometheus.Counter
	FallbackWrites   prometheus.Counter
	FallbackReads    prometheus.Counter
	BufferEvictions  prometheus.Counter
	DetectionRuns    prometheus.Counter
	Assessments      prometheus.Counter
	RequestLatency   *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_events_recorded_total",
			Help: "Total audit events accepted by the trail",
		}),
		ConsentsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consents_recorded_total",
			Help: "Total consent records accepted by the trail",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_persist_failures_total",
			Help: "Writes to the persistence collaborator that failed",
		}),
		FallbackWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_fallback_writes_total",
			Help: "Writes retained in memory only after a persistence failure",
		}),
		FallbackReads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_fallback_reads_total",
			Help: "Reads served from the in-memory buffer after a persistence failure",
		}),
		BufferEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_buffer_evictions_total",
			Help: "Events dropped from per-subject buffers on overflow",
		}),
		DetectionRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_detection_runs_total",
			Help: "Anomaly detection runs completed",
		}),
		Assessments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_risk_assessments_total",
			Help: "Risk assessments computed",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
