package transport

import (
	"github.com/Agremond/QuickSharp/sdk/ipc"
	"github.com/Agremond/QuickSharp/sdk/shm"
	"github.com/Agremond/QuickSharp/sdk/telemetry/metricbundle"
)

// Option personaliza la construcción de un transporte.
type Option func(*options)

type options struct {
	namespace shm.Namespace
	dialer    ipc.Dialer
	events    *Events
	metrics   *metricbundle.TransportMetrics
}

// WithNamespace reemplaza los objetos con nombre del kernel (ShmTransport).
func WithNamespace(ns shm.Namespace) Option {
	return func(o *options) { o.namespace = ns }
}

// WithDialer reemplaza el dialer TCP/Named Pipe (SocketTransport).
func WithDialer(d ipc.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithEvents comparte un registro de eventos entre transportes.
func WithEvents(events *Events) Option {
	return func(o *options) { o.events = events }
}

// WithMetrics usa un bundle de métricas ya construido.
func WithMetrics(m *metricbundle.TransportMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
