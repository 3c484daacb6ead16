package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// WithAttrs кладёт атрибуты операции в контекст (room_id, op), их подхватят логи ниже по стеку.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// AttrsFromCtx возвращает атрибуты из WithAttrs и trace_id/span_id, если в контексте есть span.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	carried, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	out := append([]slog.Attr(nil), carried...)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return out
}
