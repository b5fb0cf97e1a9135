package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metergate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metergate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ResetRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metergate_quota_reset_runs_total",
			Help: "Total number of quota reset runs by outcome.",
		},
		[]string{"outcome"}, // completed, skipped, failed
	)

	RecordsResetTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "metergate_quota_records_reset_total",
			Help: "Total number of quota records successfully reset.",
		},
	)

	ResetErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "metergate_quota_reset_errors_total",
			Help: "Total number of per-record reset failures.",
		},
	)

	ResetRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metergate_quota_reset_run_duration_seconds",
			Help:    "Wall-clock duration of completed reset runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	AdmissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metergate_admission_decisions_total",
			Help: "Total number of admission decisions by action class and outcome.",
		},
		[]string{"class", "outcome"}, // allowed, denied
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ResetRunsTotal,
		RecordsResetTotal,
		ResetErrorsTotal,
		ResetRunDuration,
		AdmissionDecisionsTotal,
	)
}
