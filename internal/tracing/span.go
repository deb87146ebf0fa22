package tracing

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCellSpan starts the span covering one (target, concurrency) cell.
func StartCellSpan(ctx context.Context, tracer trace.Tracer, target string, concurrency int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "cell "+target+"/"+strconv.Itoa(concurrency),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("echobench.target", target),
		attribute.Int("echobench.concurrency", concurrency),
	)
	return ctx, span
}

// StartSessionSpan starts a client span for one echo session.
func StartSessionSpan(ctx context.Context, tracer trace.Tracer, address string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "echo session",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("network.transport", "tcp"),
		attribute.String("server.address", address),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
