// Package telemetry proporciona observabilidad para el puente QUIK mediante los tres pilares:
//
// 1. Logs: Registro estructurado JSON (log/slog)
// 2. Métricas: OpenTelemetry exportables via OTLP gRPC
// 3. Trazas: Trazado con OpenTelemetry
//
// Uso básico:
//
//	client, err := telemetry.New(ctx, "quik-bridge", "production",
//	    telemetry.WithLogLevel("DEBUG"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Shutdown(ctx)
//
//	client.Info(ctx, "Transport connected")
//
//	ctx, span := client.StartSpan(ctx, "quik.send")
//	defer span.End()
//
//	metrics, _ := metricbundle.NewTransportMetrics(client.Meter())
//	metrics.RecordRequestSent(ctx, "shm", "ping")
//
// Con métricas deshabilitadas Meter() retorna un meter noop, por lo que los
// bundles de metricbundle pueden construirse siempre.
package telemetry
