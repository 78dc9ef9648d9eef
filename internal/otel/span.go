// Package otel provides span helpers and the attribute keys shared by the
// refresh pipeline.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on refresh spans
const (
	AttrViewName       = attribute.Key("view.name")
	AttrCacheKey       = attribute.Key("cache.key")
	AttrForced         = attribute.Key("refresh.forced")
	AttrOutcome        = attribute.Key("refresh.outcome")
	AttrSkipReason     = attribute.Key("refresh.skip_reason")
	AttrPayloadChanged = attribute.Key("payload.changed")
	AttrErrorKind      = attribute.Key("error.kind")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns
// the span already in ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span as failed.
// The status description stays generic; backend URLs and payload fragments
// only appear in the recorded event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
	}
}
