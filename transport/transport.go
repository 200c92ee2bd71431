package transport

import (
	"context"
	"time"
)

// Transport es el contrato que consumen las funciones tipadas de QUIK.
type Transport interface {
	// Connect abre los recursos del canal e inicia los loops de recepción.
	// Idempotente.
	Connect(ctx context.Context) error

	// Send envía command con request como payload y decodifica el resultado en
	// response (puntero, o nil para descartarlo).
	Send(ctx context.Context, command string, request, response interface{}, opts ...SendOption) error

	// Events retorna el registro de suscripciones a callbacks.
	Events() *Events

	// IsConnected indica si el canal está operativo.
	IsConnected() bool

	// NextTransactionID retorna el siguiente TRANS_ID persistente para órdenes.
	NextTransactionID() (int32, error)

	// Close detiene los loops, cancela las llamadas pendientes y libera recursos.
	// Idempotente y seguro antes de Connect.
	Close() error
}

// Call es el helper genérico sobre Transport.Send.
//
// Example:
//
//	pong, err := transport.Call[string](ctx, t, "ping", "Ping") // => "Pong"
func Call[Resp any](ctx context.Context, t Transport, command string, request interface{}, opts ...SendOption) (Resp, error) {
	var out Resp
	err := t.Send(ctx, command, request, &out, opts...)
	return out, err
}

// SendOption ajusta una llamada individual.
type SendOption func(*sendOptions)

type sendOptions struct {
	timeout    time.Duration
	validUntil *time.Time
}

// WithTimeout reemplaza el timeout por defecto de la llamada.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithValidUntil fija el deadline absoluto del request. Si vence antes de
// escribirse al canal, la llamada falla con TIMEOUT sin transmitir nada.
func WithValidUntil(t time.Time) SendOption {
	return func(o *sendOptions) {
		utc := t.UTC()
		o.validUntil = &utc
	}
}

func buildSendOptions(defaultTimeout time.Duration, opts []SendOption) sendOptions {
	o := sendOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
