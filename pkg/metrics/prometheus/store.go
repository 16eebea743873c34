package prometheus

import (
	"time"

	"github.com/marmos91/dsserver/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

// NewStoreMetrics returns blob store metrics labelled with storeType.
func NewStoreMetrics(storeType string) metrics.StoreMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopStoreMetrics()
	}

	reg := metrics.GetRegistry()
	labels := prometheus.Labels{"store": storeType}

	return &storeMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "dsserver_store_operations_total",
				Help:        "Blob store operations by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "dsserver_store_operation_duration_milliseconds",
				Help:        "Blob store operation latency",
				ConstLabels: labels,
				Buckets:     []float64{1, 5, 25, 100, 500, 2500},
			},
			[]string{"operation"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "dsserver_store_bytes_total",
				Help:        "Bytes moved through the blob store",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
	}
}

func (m *storeMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.duration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func (m *storeMetrics) RecordBytes(direction string, n int64) {
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
