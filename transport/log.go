package transport

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Agremond/QuickSharp/sdk/telemetry"
	"github.com/Agremond/QuickSharp/sdk/telemetry/semconv"
)

// logger agrega el componente a cada log del transporte.
type logger struct {
	tel       *telemetry.Client
	component string
}

func newLogger(tel *telemetry.Client, component string) logger {
	return logger{tel: tel, component: component}
}

func (l logger) attrs(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{semconv.Logs.Component.String(l.component)}, attrs...)
}

// logInfo loggea un mensaje INFO.
func (l logger) logInfo(ctx context.Context, message string, attrs ...attribute.KeyValue) {
	if l.tel == nil {
		return
	}
	l.tel.Info(ctx, message, l.attrs(attrs)...)
}

// logWarn loggea un mensaje WARN.
func (l logger) logWarn(ctx context.Context, message string, attrs ...attribute.KeyValue) {
	if l.tel == nil {
		return
	}
	l.tel.Warn(ctx, message, l.attrs(attrs)...)
}

// logDebug loggea un mensaje DEBUG.
func (l logger) logDebug(ctx context.Context, message string, attrs ...attribute.KeyValue) {
	if l.tel == nil {
		return
	}
	l.tel.Debug(ctx, message, l.attrs(attrs)...)
}

// logError loggea un mensaje ERROR.
func (l logger) logError(ctx context.Context, message string, err error, attrs ...attribute.KeyValue) {
	if l.tel == nil {
		return
	}
	l.tel.Error(ctx, message, err, l.attrs(attrs)...)
}
