package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/courier"

// Tracer wraps an OpenTelemetry tracer from the global provider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a span covering one delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, webhookID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "courier.delivery.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("courier.delivery_id", deliveryID),
			attribute.String("courier.webhook_id", webhookID),
			attribute.String("courier.event_type", eventType),
		),
	)
}

// EndDeliverySpan records the attempt result and ends span.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, errMsg string) {
	span.SetAttributes(
		attribute.Int("http.response.status_code", statusCode),
		attribute.Int("courier.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
