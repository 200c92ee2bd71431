package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
)

// Pending es una llamada en vuelo. Se completa exactamente una vez: con un
// envelope, con un error o cancelada.
type Pending struct {
	id        int64
	command   string
	createdAt time.Time

	once sync.Once
	done chan struct{}
	env  *codec.Envelope
	err  error
}

func newPending(id int64, command string) *Pending {
	return &Pending{
		id:        id,
		command:   command,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID retorna el correlation id.
func (p *Pending) ID() int64 { return p.id }

// Command retorna el comando de la llamada.
func (p *Pending) Command() string { return p.command }

// CreatedAt retorna el instante de registro.
func (p *Pending) CreatedAt() time.Time { return p.createdAt }

// Done se cierra al completarse la llamada.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result retorna el resultado. Solo es válido después de Done.
func (p *Pending) Result() (*codec.Envelope, error) {
	return p.env, p.err
}

// Wait bloquea hasta que la llamada se complete o ctx termine. No retira la
// llamada del registro.
func (p *Pending) Wait(ctx context.Context) (*codec.Envelope, error) {
	select {
	case <-p.done:
		return p.env, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) complete(env *codec.Envelope, err error) bool {
	completed := false
	p.once.Do(func() {
		p.env, p.err = env, err
		close(p.done)
		completed = true
	})
	return completed
}

// Registry mapea correlation id → llamada pendiente y genera los ids.
//
// Insert y remove son atómicos (LoadOrStore / LoadAndDelete); no hay lock
// global entre los loops de respuesta y de escritura.
type Registry struct {
	calls   sync.Map // int64 → *Pending
	counter atomic.Int32
	size    atomic.Int64
}

// RegistryOption configura un Registry.
type RegistryOption func(*Registry)

// WithInitialCorrelationID fija el contador; el primer id emitido es start+1.
func WithInitialCorrelationID(start int32) RegistryOption {
	return func(r *Registry) {
		if start < 0 {
			start = 0
		}
		r.counter.Store(start)
	}
}

// NewRegistry crea un registro vacío.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NextID retorna el siguiente correlation id. Siempre positivo: al desbordar
// int32 reinicia en 1.
func (r *Registry) NextID() int64 {
	for {
		cur := r.counter.Load()
		next := cur + 1
		if next <= 0 {
			next = 1
		}
		if r.counter.CompareAndSwap(cur, next) {
			return int64(next)
		}
	}
}

// Register agrega una llamada pendiente para id. Falla si id ya está en vuelo.
func (r *Registry) Register(id int64, command string) (*Pending, error) {
	p := newPending(id, command)
	if _, loaded := r.calls.LoadOrStore(id, p); loaded {
		return nil, domain.NewError(domain.ErrProtocolViolation, "correlation id already in flight").WithCall(command, id)
	}
	r.size.Add(1)
	return p, nil
}

// Allocate genera un id libre y registra la llamada.
func (r *Registry) Allocate(command string) *Pending {
	for {
		if p, err := r.Register(r.NextID(), command); err == nil {
			return p
		}
	}
}

// Resolve completa id con env. Retorna false si id no está pendiente.
func (r *Registry) Resolve(id int64, env *codec.Envelope) bool {
	p, ok := r.take(id)
	if !ok {
		return false
	}
	return p.complete(env, nil)
}

// Fail completa id con err. Retorna false si id no está pendiente.
func (r *Registry) Fail(id int64, err error) bool {
	p, ok := r.take(id)
	if !ok {
		return false
	}
	return p.complete(nil, err)
}

// Cancel completa id como cancelada.
func (r *Registry) Cancel(id int64) bool {
	p, ok := r.take(id)
	if !ok {
		return false
	}
	return p.complete(nil, domain.NewError(domain.ErrCancelled, "call cancelled").WithCall(p.command, id))
}

// DrainAllAsCancelled cancela todas las llamadas pendientes y retorna cuántas.
func (r *Registry) DrainAllAsCancelled() int {
	n := 0
	r.calls.Range(func(key, _ interface{}) bool {
		if r.Cancel(key.(int64)) {
			n++
		}
		return true
	})
	return n
}

// Has indica si id está pendiente.
func (r *Registry) Has(id int64) bool {
	_, ok := r.calls.Load(id)
	return ok
}

// Len retorna la cantidad de llamadas pendientes.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

func (r *Registry) take(id int64) (*Pending, bool) {
	v, ok := r.calls.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	r.size.Add(-1)
	return v.(*Pending), true
}
