package metricbundle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Agremond/QuickSharp/sdk/telemetry/semconv"
)

// TransportMetrics bundle de métricas del transporte QUIK.
//
// # Métricas de Conteo
//
//   - quik.request.sent: requests escritos al canal
//   - quik.request.completed: llamadas finalizadas (quik.status = ok | código)
//   - quik.request.expired: requests descartados por valid_until
//   - quik.callback.dispatched: callbacks entregados a suscriptores
//   - quik.callback.unknown: callbacks con comando desconocido
//   - quik.frame.dropped: frames o líneas inválidas descartadas
//   - quik.protocol.violation: respuestas sin llamada pendiente
//   - quik.reconnect.attempt: intentos de reconexión del transporte socket
//
// # Métricas de Latencia
//
//   - quik.request.latency_ms: latencia Send → resolución
//
// # Uso
//
//	metrics, err := metricbundle.NewTransportMetrics(tel.Meter())
//	metrics.RecordRequestSent(ctx, "socket", "ping")
//	metrics.RecordRequestCompleted(ctx, "socket", "ping", "ok", 1.8)
type TransportMetrics struct {
	// Counters
	RequestSent        metric.Int64Counter
	RequestCompleted   metric.Int64Counter
	RequestExpired     metric.Int64Counter
	CallbackDispatched metric.Int64Counter
	CallbackUnknown    metric.Int64Counter
	FrameDropped       metric.Int64Counter
	ProtocolViolation  metric.Int64Counter
	ReconnectAttempt   metric.Int64Counter

	// Histograms
	RequestLatency metric.Float64Histogram
}

// NewTransportMetrics crea un nuevo bundle de métricas del transporte.
func NewTransportMetrics(meter metric.Meter) (*TransportMetrics, error) {
	var (
		m   TransportMetrics
		err error
	)

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.RequestSent, "quik.request.sent", "Requests escritos al canal hacia QUIK", "{request}"},
		{&m.RequestCompleted, "quik.request.completed", "Llamadas finalizadas por estado", "{request}"},
		{&m.RequestExpired, "quik.request.expired", "Requests descartados por valid_until vencido", "{request}"},
		{&m.CallbackDispatched, "quik.callback.dispatched", "Callbacks entregados a suscriptores", "{callback}"},
		{&m.CallbackUnknown, "quik.callback.unknown", "Callbacks con comando desconocido", "{callback}"},
		{&m.FrameDropped, "quik.frame.dropped", "Frames o líneas inválidas descartadas", "{frame}"},
		{&m.ProtocolViolation, "quik.protocol.violation", "Respuestas sin llamada pendiente", "{response}"},
		{&m.ReconnectAttempt, "quik.reconnect.attempt", "Intentos de reconexión del transporte socket", "{attempt}"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
	}

	m.RequestLatency, err = meter.Float64Histogram(
		"quik.request.latency_ms",
		metric.WithDescription("Latencia desde Send hasta la resolución de la llamada"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 45000),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordRequestSent registra un request escrito al canal.
func (m *TransportMetrics) RecordRequestSent(ctx context.Context, transport, command string, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	m.RequestSent.Add(ctx, 1, metric.WithAttributes(withCall(transport, command, attrs)...))
}

// RecordRequestCompleted registra el resultado final de una llamada y su latencia.
//
// status: ok | NOT_CONNECTED | TIMEOUT | PEER_ERROR | ...
func (m *TransportMetrics) RecordRequestCompleted(ctx context.Context, transport, command, status string, latencyMs float64, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	base := withCall(transport, command, attrs)
	m.RequestLatency.Record(ctx, latencyMs, metric.WithAttributes(base...))
	m.RequestCompleted.Add(ctx, 1, metric.WithAttributes(append(base, semconv.Quik.Status.String(status))...))
}

// RecordRequestExpired registra un request vencido.
//
// stage: send | dequeue | response
func (m *TransportMetrics) RecordRequestExpired(ctx context.Context, transport, command, stage string) {
	if m == nil {
		return
	}
	attrs := withCall(transport, command, []attribute.KeyValue{attribute.String("stage", stage)})
	m.RequestExpired.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallbackDispatched registra un callback entregado.
func (m *TransportMetrics) RecordCallbackDispatched(ctx context.Context, transport, kind string) {
	if m == nil {
		return
	}
	m.CallbackDispatched.Add(ctx, 1, metric.WithAttributes(
		semconv.Quik.Transport.String(transport),
		semconv.Quik.EventKind.String(kind),
	))
}

// RecordCallbackUnknown registra un callback con comando desconocido.
func (m *TransportMetrics) RecordCallbackUnknown(ctx context.Context, transport, command string) {
	if m == nil {
		return
	}
	m.CallbackUnknown.Add(ctx, 1, metric.WithAttributes(withCall(transport, command, nil)...))
}

// RecordFrameDropped registra un frame o línea descartada.
func (m *TransportMetrics) RecordFrameDropped(ctx context.Context, transport, lane, reason string) {
	if m == nil {
		return
	}
	m.FrameDropped.Add(ctx, 1, metric.WithAttributes(
		semconv.Quik.Transport.String(transport),
		semconv.Quik.Lane.String(lane),
		semconv.Quik.Reason.String(reason),
	))
}

// RecordProtocolViolation registra una respuesta sin llamada pendiente.
func (m *TransportMetrics) RecordProtocolViolation(ctx context.Context, transport, command string) {
	if m == nil {
		return
	}
	m.ProtocolViolation.Add(ctx, 1, metric.WithAttributes(withCall(transport, command, nil)...))
}

// RecordReconnectAttempt registra un intento de reconexión.
//
// result: success | failure
func (m *TransportMetrics) RecordReconnectAttempt(ctx context.Context, transport, lane, result string) {
	if m == nil {
		return
	}
	m.ReconnectAttempt.Add(ctx, 1, metric.WithAttributes(
		semconv.Quik.Transport.String(transport),
		semconv.Quik.Lane.String(lane),
		attribute.String("result", result),
	))
}

func withCall(transport, command string, attrs []attribute.KeyValue) []attribute.KeyValue {
	base := make([]attribute.KeyValue, 0, len(attrs)+3)
	base = append(base,
		semconv.Quik.Transport.String(transport),
		semconv.Quik.Command.String(command),
	)
	return append(base, attrs...)
}
