package transport

import (
	"context"
	"time"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
	"github.com/Agremond/QuickSharp/sdk/telemetry"
	"github.com/Agremond/QuickSharp/sdk/telemetry/metricbundle"
	"github.com/Agremond/QuickSharp/sdk/telemetry/semconv"
)

// Dispatcher clasifica callbacks por comando y los publica en Events.
//
// Nunca retorna error: callbacks con luaError, desconocidos o con handlers
// fallidos se reportan y el loop que lo invoca sigue.
type Dispatcher struct {
	logger
	events    *Events
	metrics   *metricbundle.TransportMetrics
	transport string
}

// NewDispatcher crea un dispatcher para el transporte nombrado (socket | shm).
func NewDispatcher(events *Events, tel *telemetry.Client, metrics *metricbundle.TransportMetrics, transport string) *Dispatcher {
	return &Dispatcher{
		logger:    newLogger(tel, "dispatcher"),
		events:    events,
		metrics:   metrics,
		transport: transport,
	}
}

// Dispatch publica env según su comando.
func (d *Dispatcher) Dispatch(ctx context.Context, env *codec.Envelope) {
	if env == nil {
		return
	}

	if env.Error != "" {
		err := domain.NewError(domain.ErrPeerError, env.Error).WithCall(env.Command, env.ID)
		d.logWarn(ctx, "Callback carries lua error",
			semconv.Quik.Command.String(env.Command),
			semconv.Quik.ErrorCode.String(string(domain.ErrPeerError)),
		)
		d.events.ReportError(ctx, err)
		return
	}

	if domain.IsIgnoredCommand(env.Command) {
		return
	}

	kind, ok := domain.EventKindFromCommand(env.Command)
	if !ok {
		d.logDebug(ctx, "Unknown callback command",
			semconv.Quik.Command.String(env.Command),
		)
		d.metrics.RecordCallbackUnknown(ctx, d.transport, env.Command)
		d.events.PublishUnknown(ctx, env)
		return
	}

	d.publish(ctx, Event{
		Kind:      kind,
		Command:   env.Command,
		CreatedAt: env.Created(),
		Envelope:  env,
	})
}

// Emit publica un evento sintetizado localmente (ConnectedToPeer, ...).
func (d *Dispatcher) Emit(ctx context.Context, kind domain.EventKind) {
	d.logInfo(ctx, "Lifecycle event", semconv.Quik.EventKind.String(string(kind)))
	d.publish(ctx, Event{
		Kind:      kind,
		Command:   string(kind),
		CreatedAt: time.Now(),
	})
}

func (d *Dispatcher) publish(ctx context.Context, ev Event) {
	n := d.events.Publish(ctx, ev)
	if n > 0 {
		d.metrics.RecordCallbackDispatched(ctx, d.transport, string(ev.Kind))
	}
}
