package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode representa un código de error del transporte QUIK.
type ErrorCode string

// Códigos de error estándar
const (
	// ErrNoError indica éxito (sin error)
	ErrNoError ErrorCode = "NO_ERROR"

	// Errores de canal
	ErrNotConnected     ErrorCode = "NOT_CONNECTED"
	ErrConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrChannelLost      ErrorCode = "CHANNEL_LOST"

	// Errores de llamada
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrSizeLimitExceeded ErrorCode = "SIZE_LIMIT_EXCEEDED"

	// Errores de protocolo
	ErrPeerError         ErrorCode = "PEER_ERROR"
	ErrDecodeError       ErrorCode = "DECODE_ERROR"
	ErrProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"

	ErrUnknown ErrorCode = "UNKNOWN"
)

// TransportError representa un error del transporte con contexto de la llamada.
type TransportError struct {
	Code          ErrorCode
	Message       string
	Command       string
	CorrelationID int64
	Details       map[string]interface{}
	Wrapped       error
}

// Error implementa la interfaz error.
func (e *TransportError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Command != "" {
		prefix = fmt.Sprintf("[%s] %s", e.Code, e.Command)
		if e.CorrelationID > 0 {
			prefix = fmt.Sprintf("%s#%d", prefix, e.CorrelationID)
		}
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap implementa la interfaz errors.Unwrap.
func (e *TransportError) Unwrap() error {
	return e.Wrapped
}

// Is compara por código, de modo que errors.Is(err, domain.NewError(domain.ErrTimeout, ""))
// funciona sin importar el mensaje.
func (e *TransportError) Is(target error) bool {
	var t *TransportError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail agrega un detalle al error.
func (e *TransportError) WithDetail(key string, value interface{}) *TransportError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCall asocia el comando y el correlation id al error.
func (e *TransportError) WithCall(command string, correlationID int64) *TransportError {
	e.Command = command
	e.CorrelationID = correlationID
	return e
}

// NewError crea un nuevo TransportError.
//
// Example:
//
//	err := domain.NewError(domain.ErrSizeLimitExceeded, "body does not fit request lane")
func NewError(code ErrorCode, message string) *TransportError {
	return &TransportError{
		Code:    code,
		Message: message,
	}
}

// WrapError envuelve un error existente con contexto de transporte.
//
// Example:
//
//	err := domain.WrapError(domain.ErrConnectionFailed, "open request lane", originalErr)
func WrapError(code ErrorCode, message string, wrapped error) *TransportError {
	return &TransportError{
		Code:    code,
		Message: message,
		Wrapped: wrapped,
	}
}

// CodeOf extrae el ErrorCode de un error. Retorna ErrNoError para nil y
// ErrUnknown si el error no proviene del transporte.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrNoError
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return ErrUnknown
}

// IsCode indica si err corresponde al código dado.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
