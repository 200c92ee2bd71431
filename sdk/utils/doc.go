// Package utils provee utilidades comunes para el SDK de QuikSharp.
//
// # Utilidades Incluidas
//
// - Timestamp: Helpers para timestamps Unix en ms (campo `t` del envelope)
// - JSON: Validación y manipulación de JSON line-delimited
//
// # Uso de Timestamp
//
//	start := time.Now()
//	// ... operación ...
//	elapsed := utils.ElapsedMsSince(start)
//
//	// Conversión
//	t := utils.UnixMilliToTime(1698345601234)
//
// # Uso de JSON
//
//	// Payload nulo
//	if utils.IsJSONNull(raw) { ... }
//
//	// Línea para el socket
//	line := utils.EnsureNewlineBytes(data)
//
// # Integración
//
// Este paquete es usado por:
//   - sdk/codec: serialización del envelope
//   - sdk/ipc: framing line-delimited
//   - transport: loops de lectura/escritura y logging
package utils
