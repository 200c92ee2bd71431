// Package semconv define las claves de atributos OpenTelemetry usadas en logs,
// métricas y trazas del puente QUIK.
//
// Uso básico:
//
//	attrs := []attribute.KeyValue{
//	    semconv.Logs.Component.String("socket_transport"),
//	    semconv.Quik.Command.String("ping"),
//	    semconv.Quik.CorrelationID.Int64(42),
//	}
package semconv
