package livecache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/airheartdev/livecache"

// Traced wraps an accessor so every backend fetch and write runs inside an
// OpenTelemetry client span. Spans are named livecache.fetch and
// livecache.write and carry the key as an attribute.
func Traced[T any](next RemoteAccessor[T]) RemoteAccessor[T] {
	return &tracedAccessor[T]{next: next, tracer: otel.Tracer(tracerName)}
}

type tracedAccessor[T any] struct {
	next   RemoteAccessor[T]
	tracer trace.Tracer
}

var _ RemoteAccessor[any] = &tracedAccessor[any]{}

func (a *tracedAccessor[T]) Fetch(ctx context.Context, key string) (T, error) {
	ctx, span := a.tracer.Start(ctx, "livecache.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("livecache.key", key)),
	)
	defer span.End()

	value, err := a.next.Fetch(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}

func (a *tracedAccessor[T]) Write(ctx context.Context, key string, value T) (T, error) {
	ctx, span := a.tracer.Start(ctx, "livecache.write",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("livecache.key", key)),
	)
	defer span.End()

	confirmed, err := a.next.Write(ctx, key, value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return confirmed, err
}
