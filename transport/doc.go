// Package transport implementa la capa de transporte hacia el script Lua de QUIK.
//
// Multiplexa llamadas request/response concurrentes sobre un único canal físico,
// resuelve cada respuesta contra su llamada pendiente por correlation id y, en
// paralelo, despacha el stream independiente de callbacks (órdenes, trades,
// cotizaciones, límites) a los suscriptores de cada tipo de evento.
//
// # Variantes
//
//   - SocketTransport: dos conexiones TCP (base y base+1) o Named Pipes, cada
//     una con reconexión independiente cada ReconnectBackoff.
//   - ShmTransport: tres lanes de memoria compartida (request, response,
//     callback) con semáforos con nombre.
//
// # Uso Básico
//
//	cfg, err := transport.LoadConfig(ctx)
//	tel, err := telemetry.New(ctx, cfg.ServiceName, cfg.Environment, cfg.TelemetryOptions()...)
//
//	t, err := transport.NewTransport(cfg, tel)
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	if err := t.Connect(ctx); err != nil {
//	    return err
//	}
//
//	pong, err := transport.Call[string](ctx, t, "ping", "Ping")
//
//	unsubscribe := transport.On(t.Events(), domain.EventTrade, func(ctx context.Context, trade map[string]any) {
//	    // ...
//	})
//	defer unsubscribe()
//
// # Errores
//
// Todas las fallas de Send son *domain.TransportError; usar errors.Is contra
// domain.NewError(code, "") o domain.IsCode(err, code).
package transport
