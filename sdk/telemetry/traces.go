package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan inicia un span con los atributos comunes del contexto.
//
// Con trazas deshabilitadas retorna el span actual (noop).
func (c *Client) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	if common := GetCommonAttrs(ctx); len(common) > 0 {
		opts = append(opts, trace.WithAttributes(common...))
	}
	return c.tracer.Start(ctx, name, opts...)
}

// EndSpan cierra span marcando el error si lo hubo.
func (c *Client) EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span.IsRecording() {
		if len(attrs) > 0 {
			span.SetAttributes(attrs...)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	span.End()
}

// GetTraceID extrae el TraceID del contexto
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
