package config

import (
	"net"
	"strconv"

	"github.com/marmos91/dsserver/pkg/metrics"
	promMetrics "github.com/marmos91/dsserver/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ServerMetrics is handed to dsserver.New (never nil, noop if disabled)
	ServerMetrics metrics.ServerMetrics

	// StoreMetrics wraps the blob store (never nil, noop if disabled)
	StoreMetrics metrics.StoreMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// When metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned along with the HTTP server.
// Otherwise Server is nil and both collectors are no-ops.
//
// The Prometheus collectors register fixed metric names, so this must be
// called at most once per process when metrics are enabled.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			ServerMetrics: metrics.NewNoopServerMetrics(),
			StoreMetrics:  metrics.NewNoopStoreMetrics(),
		}
	}

	metrics.InitRegistry()

	serverCfg := metrics.ServerConfig{Port: cfg.Metrics.Port}
	if cfg.Metrics.Host != "" {
		serverCfg.Address = net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
	}

	return &MetricsResult{
		Server:        metrics.NewServer(serverCfg),
		ServerMetrics: promMetrics.NewServerMetrics(),
		StoreMetrics:  promMetrics.NewStoreMetrics(cfg.Store.Type),
	}
}
