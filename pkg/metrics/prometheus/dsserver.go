package prometheus

import (
	"time"

	"github.com/marmos91/dsserver/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsDenied   *prometheus.CounterVec
	connectionsClosed   prometheus.Counter
	activeClients       prometheus.Gauge
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	acceptErrors        prometheus.Counter
	purgedWorkers       prometheus.Counter
}

// NewServerMetrics returns Prometheus-backed server metrics, or a no-op
// implementation when the registry has not been initialized.
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServerMetrics()
	}

	reg := metrics.GetRegistry()

	return &serverMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dsserver_connections_accepted_total",
			Help: "Connections admitted and handed to a worker",
		}),
		connectionsDenied: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsserver_connections_denied_total",
				Help: "Connections refused at admission, by reason",
			},
			[]string{"reason"},
		),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dsserver_connections_closed_total",
			Help: "Workers that have retired",
		}),
		activeClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dsserver_active_clients",
			Help: "Workers currently serving a client",
		}),
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsserver_requests_total",
				Help: "Requests dispatched, by category, type and status",
			},
			[]string{"category", "type", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dsserver_request_duration_milliseconds",
				Help: "Time from dispatch to reply written",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"category", "type"},
		),
		acceptErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dsserver_accept_errors_total",
			Help: "Accept failures other than timeouts",
		}),
		purgedWorkers: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dsserver_purged_workers_total",
			Help: "Completed worker entries reclaimed from the registry",
		}),
	}
}

func (m *serverMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionDenied(reason string) {
	m.connectionsDenied.WithLabelValues(reason).Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) SetActiveClients(count int) {
	m.activeClients.Set(float64(count))
}

func (m *serverMetrics) RecordRequest(category, msgType string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.requestsTotal.WithLabelValues(category, msgType, status).Inc()
	m.requestDuration.WithLabelValues(category, msgType).Observe(float64(duration.Milliseconds()))
}

func (m *serverMetrics) RecordAcceptError() {
	m.acceptErrors.Inc()
}

func (m *serverMetrics) RecordPurged(n int) {
	if n > 0 {
		m.purgedWorkers.Add(float64(n))
	}
}
