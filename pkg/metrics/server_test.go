package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/marmos91/dsserver/pkg/metrics"
	"github.com/marmos91/dsserver/pkg/metrics/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesRecordedMetrics(t *testing.T) {
	metrics.InitRegistry()
	require.True(t, metrics.IsEnabled())

	sm := prometheus.NewServerMetrics()
	sm.RecordConnectionAccepted()
	sm.RecordConnectionDenied("capacity")
	sm.SetActiveClients(3)
	sm.RecordRequest("server_status", "IS_ALIVE", 2*time.Millisecond, nil)
	sm.RecordRequest("data", "PUT", time.Millisecond, errors.New("boom"))

	st := prometheus.NewStoreMetrics("memory")
	st.RecordOperation("put", time.Millisecond, nil)
	st.RecordBytes("in", 128)

	srv := metrics.NewServer(metrics.ServerConfig{Address: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "dsserver_connections_accepted_total 1")
	assert.Contains(t, text, `dsserver_connections_denied_total{reason="capacity"} 1`)
	assert.Contains(t, text, "dsserver_active_clients 3")
	assert.Contains(t, text, `dsserver_requests_total{category="data",status="error",type="PUT"} 1`)
	assert.Contains(t, text, `dsserver_store_bytes_total{direction="in",store="memory"} 128`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestNoopMetrics(t *testing.T) {
	m := metrics.NewNoopServerMetrics()
	m.RecordConnectionAccepted()
	m.RecordPurged(4)
	metrics.NewNoopStoreMetrics().RecordBytes("out", 1)
}
