package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
	"github.com/Agremond/QuickSharp/sdk/telemetry"
	"github.com/Agremond/QuickSharp/sdk/telemetry/metricbundle"
	"github.com/Agremond/QuickSharp/sdk/telemetry/semconv"
	"github.com/Agremond/QuickSharp/sdk/utils"
)

// core reúne el estado compartido por ambas variantes: registro de llamadas,
// eventos, dispatcher y telemetría.
type core struct {
	logger
	name        string
	tel         *telemetry.Client
	metrics     *metricbundle.TransportMetrics
	registry    *Registry
	events      *Events
	dispatcher  *Dispatcher
	sendTimeout time.Duration
	sessionID   string
	cfg         *Config

	transIDMu      sync.Mutex
	transIDs       *TransactionIDStore
	transIDsClosed bool
}

func newCore(name string, cfg *Config, tel *telemetry.Client, o *options) (*core, error) {
	metrics := o.metrics
	if metrics == nil {
		m, err := metricbundle.NewTransportMetrics(tel.Meter())
		if err != nil {
			return nil, domain.WrapError(domain.ErrConnectionFailed, "create transport metrics", err)
		}
		metrics = m
	}
	events := o.events
	if events == nil {
		events = NewEvents()
	}

	return &core{
		logger:      newLogger(tel, name+"_transport"),
		name:        name,
		tel:         tel,
		metrics:     metrics,
		registry:    NewRegistry(WithInitialCorrelationID(cfg.InitialCorrelationID)),
		events:      events,
		dispatcher:  NewDispatcher(events, tel, metrics, name),
		sendTimeout: cfg.SendTimeout,
		sessionID:   NewSessionID(time.Now()),
		cfg:         cfg,
	}, nil
}

// Events implementa Transport.
func (c *core) Events() *Events { return c.events }

// Registry expone el registro de llamadas pendientes.
func (c *core) Registry() *Registry { return c.registry }

// SessionID retorna el id de sesión del transporte (yyMMddHHmmss).
func (c *core) SessionID() string { return c.sessionID }

// PrependWithSessionID compone "<session>.<id>".
func (c *core) PrependWithSessionID(id int64) string {
	return PrependWithSessionID(c.sessionID, id)
}

// call es una llamada en curso desde Send hasta su resolución.
type call struct {
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	span    trace.Span
	command string
	pending *Pending
	env     *codec.Envelope
	body    []byte
	started time.Time
}

// begin abre el span de la llamada.
func (c *core) begin(ctx context.Context, command string) *call {
	ctx, span := c.tel.StartSpan(ctx, "quik.send",
		trace.WithAttributes(
			semconv.Quik.Transport.String(c.name),
			semconv.Quik.Command.String(command),
		),
	)
	return &call{parent: ctx, ctx: ctx, span: span, command: command, started: time.Now()}
}

// prepare valida valid_until, registra la llamada y codifica el envelope.
func (c *core) prepare(cl *call, request interface{}, opts []SendOption) error {
	o := buildSendOptions(c.sendTimeout, opts)

	if o.validUntil != nil && time.Now().After(*o.validUntil) {
		c.metrics.RecordRequestExpired(cl.parent, c.name, cl.command, "send")
		return domain.NewError(domain.ErrTimeout, "valid_until already elapsed").WithCall(cl.command, 0)
	}

	cl.pending = c.registry.Allocate(cl.command)
	cl.span.SetAttributes(semconv.Quik.CorrelationID.Int64(cl.pending.ID()))

	cl.env = codec.NewEnvelope(cl.pending.ID(), cl.command, codec.PayloadOf(request))
	if o.validUntil != nil {
		cl.env.WithValidUntil(*o.validUntil)
	}

	body, err := codec.Encode(cl.env)
	if err != nil {
		c.registry.Fail(cl.pending.ID(), err)
		return err
	}
	cl.body = body

	cl.ctx, cl.cancel = context.WithTimeout(cl.parent, o.timeout)
	return nil
}

// await espera la resolución de la llamada, su timeout o la cancelación del
// caller; lo primero que ocurra retira la entrada del registro.
func (c *core) await(cl *call) (*codec.Envelope, error) {
	select {
	case <-cl.pending.Done():
	case <-cl.ctx.Done():
		c.registry.Fail(cl.pending.ID(), c.deadlineError(cl))
		<-cl.pending.Done()
	}
	return cl.pending.Result()
}

// deadlineError distingue la cancelación del caller del timeout de la llamada.
func (c *core) deadlineError(cl *call) error {
	if err := cl.parent.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrCancelled, "call cancelled by caller", err).WithCall(cl.command, cl.id())
	}
	return domain.WrapError(domain.ErrTimeout, "no response within timeout", context.DeadlineExceeded).WithCall(cl.command, cl.id())
}

// finish decodifica el resultado en response y registra métricas y span.
func (c *core) finish(cl *call, env *codec.Envelope, err error, response interface{}) error {
	if cl.cancel != nil {
		cl.cancel()
	}
	if err == nil {
		err = codec.DecodeData(env, response)
	}

	status := "ok"
	if err != nil {
		status = string(domain.CodeOf(err))
		c.logDebug(cl.parent, "Call failed",
			append(semconv.CallAttributes(cl.command, cl.id()), semconv.Quik.ErrorCode.String(status))...,
		)
	}
	c.metrics.RecordRequestCompleted(cl.parent, c.name, cl.command, status, utils.ElapsedMsSince(cl.started))
	c.tel.EndSpan(cl.span, err, semconv.Quik.Status.String(status))
	return err
}

func (cl *call) id() int64 {
	if cl.pending == nil {
		return 0
	}
	return cl.pending.ID()
}

// resolveResponse resuelve la llamada que corresponde a env. Un envelope cuyo
// valid_until ya venció resuelve la llamada como TIMEOUT.
func (c *core) resolveResponse(ctx context.Context, id int64, env *codec.Envelope) bool {
	if env.Expired(time.Now()) {
		c.metrics.RecordRequestExpired(ctx, c.name, env.Command, "response")
		return c.registry.Fail(id, domain.NewError(domain.ErrTimeout, "response arrived after valid_until").WithCall(env.Command, id))
	}
	return c.registry.Resolve(id, env)
}
