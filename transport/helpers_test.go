package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Agremond/QuickSharp/sdk/telemetry"
	"github.com/Agremond/QuickSharp/sdk/telemetry/metricbundle"
)

func newTestTelemetryClient(t *testing.T) *telemetry.Client {
	t.Helper()
	ctx := context.Background()
	tel, err := telemetry.New(ctx, "quik-test", "test",
		telemetry.WithLogsDisabled(), telemetry.WithMetricsDisabled(), telemetry.WithTracesDisabled())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })
	return tel
}

// newTestMetrics retorna un bundle sobre un ManualReader para inspeccionar
// los contadores.
func newTestMetrics(t *testing.T) (*metricbundle.TransportMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := metricbundle.NewTransportMetrics(provider.Meter("transport-test"))
	require.NoError(t, err)
	return m, reader
}

// counterValue suma los puntos del contador name.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func testConfig(kind Kind) *Config {
	cfg := DefaultConfig()
	cfg.Kind = kind
	cfg.SendTimeout = 5 * time.Second
	cfg.ReconnectBackoff = 20 * time.Millisecond
	cfg.ResponsePoll = 5 * time.Millisecond
	cfg.CallbackPoll = 5 * time.Millisecond
	cfg.ResponseBackoff = 10 * time.Millisecond
	cfg.CallbackBackoff = 10 * time.Millisecond
	return cfg
}
