package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activerecord_delegate_operations_total",
			Help: "Number of delegate operations by backend, operation and result.",
		},
		[]string{"backend", "op", "result"},
	)
	metricDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "activerecord_delegate_operation_duration_seconds",
			Help:    "Delegate operation latency.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "op"},
	)
	metricRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activerecord_delegate_rows_total",
			Help: "Rows read or affected by delegate operations.",
		},
		[]string{"backend", "op"},
	)
)

// Observe records one finished operation. Use it deferred:
//
//	defer metrics.Observe("sqlite", "insert", time.Now(), &err)
func Observe(backend, op string, start time.Time, err *error) {
	result := "ok"
	if err != nil && *err != nil {
		result = "error"
	}
	metricOperations.WithLabelValues(backend, op, result).Inc()
	metricDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func Rows(backend, op string, n int64) {
	if n > 0 {
		metricRows.WithLabelValues(backend, op).Add(float64(n))
	}
}
