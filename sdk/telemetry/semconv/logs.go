package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

// Logs define los atributos comunes de todos los mensajes de log.
var Logs struct {
	// Component identifica el componente que genera el log.
	// Ejemplos: "socket_transport", "shm_transport", "dispatcher".
	Component attribute.Key

	// Event identifica la acción específica que ocurrió dentro del componente.
	Event attribute.Key

	// ServiceName se mapea a la convención OTel "service.name".
	ServiceName attribute.Key

	// Environment identifica el entorno de ejecución.
	Environment attribute.Key
}

func init() {
	Logs.Component = attribute.Key("component")
	Logs.Event = attribute.Key("event")

	Logs.ServiceName = attribute.Key("service.name")
	Logs.Environment = attribute.Key("service.environment")
}
