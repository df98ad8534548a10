package reqengine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer is the opaque span factory from spec §3/§4.7. It is a direct
// alias for OpenTelemetry's trace.Tracer — the engine treats it as a
// capability the caller may or may not supply, never constructing one
// itself. When absent, startSpan is a no-op.
type Tracer = oteltrace.Tracer

// startSpan starts a span if tracer is non-nil, suppressing any panic the
// tracer implementation might raise (spec §4.7: "returns a handle or
// nothing if tracer absent or if the tracer throws"). It returns the
// possibly-updated context and a span, both of which are safe to use even
// when tracer is nil (oteltrace.Tracer(nil) calls are not made; instead
// startSpan returns a no-op span in that case).
func startSpan(ctx context.Context, tracer Tracer, name string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		return ctx, oteltrace.SpanFromContext(context.Background())
	}

	var (
		outCtx = ctx
		span   oteltrace.Span
	)
	func() {
		defer func() { recover() }()
		outCtx, span = tracer.Start(ctx, name)
	}()
	if span == nil {
		return ctx, oteltrace.SpanFromContext(context.Background())
	}
	return outCtx, span
}

// endSpan sets the standard attributes and ends span, suppressing any
// instrumentation failure (spec §4.7).
func endSpan(span oteltrace.Span, status *int, requestID string, attempt int) {
	if span == nil {
		return
	}
	defer func() { recover() }()

	attrs := []attribute.KeyValue{
		attribute.String("request.id", requestID),
		attribute.Int("retry.attempt", attempt),
	}
	if status != nil {
		attrs = append(attrs, attribute.Int("http.status", *status))
	}
	span.SetAttributes(attrs...)
	span.End()
}
