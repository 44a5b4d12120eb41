package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clad_requests_total",
			Help: "Total number of requests processed, by service and outcome",
		},
		[]string{"service", "transport", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clad_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "transport"},
	)

	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clad_backend_errors_total",
			Help: "Total number of failed backend calls, by error kind",
		},
		[]string{"kind"},
	)

	HistoryAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clad_history_appends_total",
			Help: "Total number of history append attempts",
		},
		[]string{"outcome"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clad_cache_hits_total",
			Help: "Total number of answer cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clad_cache_misses_total",
			Help: "Total number of answer cache misses",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clad_active_streams",
			Help: "Number of streaming responses currently being emitted",
		},
	)
)

func RecordRequest(service, transport, outcome string, durationSec float64) {
	RequestsTotal.WithLabelValues(service, transport, outcome).Inc()
	RequestDuration.WithLabelValues(service, transport).Observe(durationSec)
}

func RecordBackendError(kind string) {
	BackendErrors.WithLabelValues(kind).Inc()
}

func RecordHistoryAppend(outcome string) {
	HistoryAppends.WithLabelValues(outcome).Inc()
}
