package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
)

// Event es un callback ya clasificado.
type Event struct {
	Kind      domain.EventKind
	Command   string
	CreatedAt time.Time

	// Envelope es nil para los eventos sintetizados localmente
	// (ConnectedToPeer, DisconnectedFromPeer).
	Envelope *codec.Envelope
}

// Decode decodifica el payload del evento en target.
func (e Event) Decode(target interface{}) error {
	if e.Envelope == nil {
		return nil
	}
	return codec.DecodeData(e.Envelope, target)
}

// Handler procesa un evento. Un error retornado se reporta al sink de errores.
type Handler func(ctx context.Context, ev Event) error

// UnknownHandler recibe callbacks con comando desconocido.
type UnknownHandler func(ctx context.Context, env *codec.Envelope)

// ErrorHandler recibe errores del transporte que no tienen una llamada a la
// que propagarse (callbacks fallidos, violaciones de protocolo, handlers).
type ErrorHandler func(ctx context.Context, err error)

type subscription[T any] struct {
	token uint64
	fn    T
}

// Events es el registro publish/subscribe de callbacks.
//
// Cada tipo de evento tiene su lista de suscriptores, invocados en orden de
// registro. Sin buffering ni replay: un evento llega a quien esté suscrito al
// momento de publicarse.
type Events struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[domain.EventKind][]subscription[Handler]
	unknown  []subscription[UnknownHandler]
	errs     []subscription[ErrorHandler]
}

// NewEvents crea un registro vacío.
func NewEvents() *Events {
	return &Events{handlers: make(map[domain.EventKind][]subscription[Handler])}
}

// Subscribe agrega h a kind. Retorna la función para desuscribirse.
func (e *Events) Subscribe(kind domain.EventKind, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	token := e.next
	e.handlers[kind] = append(e.handlers[kind], subscription[Handler]{token: token, fn: h})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.handlers[kind] = remove(e.handlers[kind], token)
	}
}

// OnUnknown agrega un sink de callbacks desconocidos.
func (e *Events) OnUnknown(h UnknownHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	token := e.next
	e.unknown = append(e.unknown, subscription[UnknownHandler]{token: token, fn: h})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.unknown = remove(e.unknown, token)
	}
}

// OnError agrega un sink de errores del transporte.
func (e *Events) OnError(h ErrorHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	token := e.next
	e.errs = append(e.errs, subscription[ErrorHandler]{token: token, fn: h})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.errs = remove(e.errs, token)
	}
}

// Subscribers retorna la cantidad de suscriptores de kind.
func (e *Events) Subscribers(kind domain.EventKind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[kind])
}

// Publish entrega ev a los suscriptores actuales de ev.Kind y retorna a
// cuántos. Un handler que falla o entra en pánico no detiene a los demás.
func (e *Events) Publish(ctx context.Context, ev Event) int {
	e.mu.RLock()
	subs := e.handlers[ev.Kind]
	e.mu.RUnlock()

	for _, s := range subs {
		if err := e.invoke(ctx, s.fn, ev); err != nil {
			e.ReportError(ctx, err)
		}
	}
	return len(subs)
}

func (e *Events) invoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.ErrUnknown, fmt.Sprintf("handler panic: %v", r)).
				WithCall(ev.Command, 0).
				WithDetail("event_kind", string(ev.Kind))
		}
	}()
	return h(ctx, ev)
}

// PublishUnknown entrega env a los sinks de callbacks desconocidos.
func (e *Events) PublishUnknown(ctx context.Context, env *codec.Envelope) {
	e.mu.RLock()
	subs := e.unknown
	e.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.ReportError(ctx, domain.NewError(domain.ErrUnknown, fmt.Sprintf("unknown handler panic: %v", r)).
						WithCall(env.Command, 0))
				}
			}()
			s.fn(ctx, env)
		}()
	}
}

// ReportError entrega err a los sinks de errores. Los pánicos de un sink se
// descartan.
func (e *Events) ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	e.mu.RLock()
	subs := e.errs
	e.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() { _ = recover() }()
			s.fn(ctx, err)
		}()
	}
}

// On suscribe fn a kind decodificando el payload en T.
//
// Example:
//
//	unsubscribe := transport.On(t.Events(), domain.EventStop, func(ctx context.Context, signal string) {
//	    // ...
//	})
func On[T any](events *Events, kind domain.EventKind, fn func(ctx context.Context, payload T)) func() {
	return events.Subscribe(kind, func(ctx context.Context, ev Event) error {
		var payload T
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		fn(ctx, payload)
		return nil
	})
}

// remove retorna una copia de subs sin token; los snapshots tomados por
// Publish siguen siendo válidos.
func remove[T any](subs []subscription[T], token uint64) []subscription[T] {
	out := make([]subscription[T], 0, len(subs))
	for _, s := range subs {
		if s.token != token {
			out = append(out, s)
		}
	}
	return out
}
