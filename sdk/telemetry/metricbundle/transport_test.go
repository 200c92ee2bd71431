package metricbundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestTransportMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewTransportMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRequestSent(ctx, "socket", "ping")
	m.RecordRequestSent(ctx, "socket", "ping")
	m.RecordRequestCompleted(ctx, "socket", "ping", "ok", 1.5)
	m.RecordRequestExpired(ctx, "socket", "ping", "dequeue")
	m.RecordCallbackDispatched(ctx, "shm", "ontrade")
	m.RecordCallbackUnknown(ctx, "shm", "OnFoo")
	m.RecordFrameDropped(ctx, "shm", "response", "bad_magic")
	m.RecordProtocolViolation(ctx, "socket", "ping")
	m.RecordReconnectAttempt(ctx, "socket", "callback", "failure")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["quik.request.sent"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.request.completed"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.request.expired"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.callback.dispatched"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.callback.unknown"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.frame.dropped"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.protocol.violation"]))
	assert.Equal(t, int64(1), sumOf(t, got["quik.reconnect.attempt"]))

	hist, ok := got["quik.request.latency_ms"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestTransportMetricsNilReceiver(t *testing.T) {
	var m *TransportMetrics
	assert.NotPanics(t, func() {
		m.RecordRequestSent(context.Background(), "socket", "ping")
		m.RecordRequestCompleted(context.Background(), "socket", "ping", "ok", 1)
		m.RecordReconnectAttempt(context.Background(), "socket", "response", "success")
	})
}
