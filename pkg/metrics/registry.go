// Package metrics defines the observability interfaces used by the server and
// its stores, plus the Prometheus registry and HTTP endpoint that back them.
//
// Metrics are optional. When InitRegistry has not been called every
// constructor in pkg/metrics/prometheus hands back a no-op implementation, so
// the server runs identically with or without collection enabled.
//
// Usage:
//
//	metrics.InitRegistry()
//	srvMetrics := prometheus.NewServerMetrics()
//	srv, _ := dsserver.New(cfg, handler, hooks, srvMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
