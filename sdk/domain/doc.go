// Package domain contiene los tipos de dominio compartidos por el transporte QUIK.
//
// # Responsabilidades
//
// - Sistema de errores del transporte (ErrorCode + TransportError)
// - Conjunto cerrado de eventos (callbacks) que emite el script Lua
//
// # Sistema de Errores
//
// Errores tipados con contexto de la llamada:
//
//	err := domain.NewError(domain.ErrTimeout, "valid_until elapsed before send").
//	    WithCall("sendTransaction", 42)
//
//	// Wrapping
//	err := domain.WrapError(domain.ErrConnectionFailed, "open request lane", originalErr)
//
//	// Comparación por código
//	if domain.IsCode(err, domain.ErrTimeout) {
//	    // reintentar
//	}
//	errors.Is(err, domain.NewError(domain.ErrTimeout, "")) // true
//
// # Eventos
//
// Los callbacks se clasifican por su tag `cmd` sin distinguir mayúsculas:
//
//	kind, ok := domain.EventKindFromCommand("OnOrder") // => domain.EventOrder, true
//	_, ok = domain.EventKindFromCommand("totallyUnknownEvent") // => false
//
// Los tags desconocidos no son errores: el dispatcher los entrega al sink
// de callbacks desconocidos.
package domain
