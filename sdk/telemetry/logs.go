package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
)

// Info registra un mensaje informativo
func (c *Client) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	c.log(ctx, slog.LevelInfo, msg, nil, attrs)
}

// Error registra un mensaje de error
func (c *Client) Error(ctx context.Context, msg string, err error, attrs ...attribute.KeyValue) {
	c.log(ctx, slog.LevelError, msg, err, attrs)
}

// Warn registra un mensaje de advertencia
func (c *Client) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	c.log(ctx, slog.LevelWarn, msg, nil, attrs)
}

// Debug registra un mensaje de debug
func (c *Client) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	c.log(ctx, slog.LevelDebug, msg, nil, attrs)
}

// log agrega los atributos del contexto (comunes y de evento) y el trace id.
func (c *Client) log(ctx context.Context, level slog.Level, msg string, err error, attrs []attribute.KeyValue) {
	if c.logger == nil || !c.logger.Enabled(ctx, level) {
		return
	}

	all := make([]attribute.KeyValue, 0, len(attrs)+4)
	all = append(all, GetCommonAttrs(ctx)...)
	all = append(all, GetEventAttrs(ctx)...)
	all = append(all, attrs...)

	args := c.convertAttrsToSlogArgs(all)
	if traceID := GetTraceID(ctx); traceID != "" {
		args = append(args, slog.String("trace_id", traceID))
	}
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	c.logger.Log(ctx, level, msg, args...)
}

// convertAttrsToSlogArgs convierte atributos OTEL a argumentos slog
func (c *Client) convertAttrsToSlogArgs(attrs []attribute.KeyValue) []any {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, string(attr.Key), attr.Value.AsInterface())
	}
	return args
}
