package gqlexec

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BenBurnett/gqlexec"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func startAttemptSpan(ctx context.Context, tracer trace.Tracer, attempt int, transport Transport, req *Request) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "graphql.attempt", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("gqlexec.attempt", attempt),
		attribute.String("graphql.transport", transport.String()),
		attribute.String("graphql.operation.name", req.operationName()),
	)
	return ctx, span
}

func endAttemptSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
