package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "homemonitor"

// StartRecordSpan starts a span covering persist-then-broadcast of one report.
func StartRecordSpan(ctx context.Context, source, sensorID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "motion.record",
		trace.WithAttributes(
			attribute.String("ingest.source", source),
			attribute.String("sensor.id", sensorID),
		),
	)
}

// StartBroadcastSpan starts a span for one fan-out across the registry.
func StartBroadcastSpan(ctx context.Context, recipients int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ws.broadcast",
		trace.WithAttributes(
			attribute.Int("ws.recipients", recipients),
		),
	)
}
