// Package metricbundle agrupa los instrumentos OpenTelemetry del puente QUIK
// en structs construidos una sola vez a partir de un metric.Meter.
//
// Convención de nombres: quik.<entidad>.<métrica>, por ejemplo
// quik.request.sent o quik.request.latency_ms.
//
// Uso básico:
//
//	metrics, err := metricbundle.NewTransportMetrics(client.Meter())
//	if err != nil {
//	    return err
//	}
//	metrics.RecordCallbackDispatched(ctx, "shm", "ontrade")
//
// Los métodos Record* aceptan un receptor nil y no hacen nada.
package metricbundle
