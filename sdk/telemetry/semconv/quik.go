package semconv

import "go.opentelemetry.io/otel/attribute"

// Quik contiene atributos semánticos del puente QUIK.
//
// # Llamadas
//
//   - quik.command: comando del envelope (ping, getSecurityInfo, ...)
//   - quik.correlation_id: correlation id de la llamada
//   - quik.status: resultado (ok / código de error)
//   - quik.error_code: código de error de la taxonomía
//
// # Canal
//
//   - quik.transport: socket | shm
//   - quik.lane: request | response | callback
//   - quik.address: host:port o nombre del pipe
//   - quik.attempt: intento de reconexión
//
// # Callbacks
//
//   - quik.event_kind: tipo de evento despachado
//
// # Uso
//
//	client.Info(ctx, "Call resolved",
//	    semconv.Quik.Command.String("ping"),
//	    semconv.Quik.CorrelationID.Int64(42),
//	)
var Quik = quikAttributes{
	Command:       attribute.Key("quik.command"),
	CorrelationID: attribute.Key("quik.correlation_id"),
	Status:        attribute.Key("quik.status"),
	ErrorCode:     attribute.Key("quik.error_code"),

	Transport: attribute.Key("quik.transport"),
	Lane:      attribute.Key("quik.lane"),
	Address:   attribute.Key("quik.address"),
	Attempt:   attribute.Key("quik.attempt"),
	Reason:    attribute.Key("quik.reason"),
	BodySize:  attribute.Key("quik.body_size"),

	EventKind: attribute.Key("quik.event_kind"),
}

type quikAttributes struct {
	Command       attribute.Key
	CorrelationID attribute.Key
	Status        attribute.Key
	ErrorCode     attribute.Key

	Transport attribute.Key
	Lane      attribute.Key
	Address   attribute.Key
	Attempt   attribute.Key
	Reason    attribute.Key
	BodySize  attribute.Key

	EventKind attribute.Key
}

// CallAttributes crea los atributos de una llamada.
//
// Example:
//
//	client.Debug(ctx, "Request written", semconv.CallAttributes("ping", 42)...)
func CallAttributes(command string, correlationID int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		Quik.Command.String(command),
		Quik.CorrelationID.Int64(correlationID),
	}
}
