// internal/common/metrics/metrics.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"itdocs-query/internal/common/observability"
	"itdocs-query/internal/models"
)

var (
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itdocs_queries_processed_total",
			Help: "Total number of queries processed by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itdocs_query_duration_seconds",
			Help:    "Duration of query processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itdocs_query_cache_events_total",
			Help: "Response cache hits, misses and errors",
		},
		[]string{"event"},
	)

	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itdocs_validation_rejections_total",
			Help: "Responses rejected by the validator, by reason code",
		},
		[]string{"code"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itdocs_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itdocs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// QueryRecorder feeds engine events into the Prometheus collectors above
// and, when set, the OpenTelemetry meter.
type QueryRecorder struct {
	obs *observability.Observability
}

func NewQueryRecorder(obs *observability.Observability) *QueryRecorder {
	return &QueryRecorder{obs: obs}
}

func (r *QueryRecorder) QueryProcessed(intent models.Intent, outcome string, elapsed time.Duration) {
	label := string(intent)
	if label == "" {
		label = string(models.IntentUnknown)
	}
	QueriesProcessed.WithLabelValues(label, outcome).Inc()
	QueryDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	if r.obs != nil {
		r.obs.RecordQuery(context.Background(), label, outcome, elapsed)
	}
}

func (r *QueryRecorder) CacheEvent(event string) {
	CacheEvents.WithLabelValues(event).Inc()
}

func (r *QueryRecorder) ValidationRejected(code string) {
	ValidationRejections.WithLabelValues(code).Inc()
}
