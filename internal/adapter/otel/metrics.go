package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "homemonitor"

// Metrics holds all HomeMonitor metric instruments. A nil *Metrics is
// valid: every recording method is then a no-op.
type Metrics struct {
	ConnectionsOpened metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
	AlertsBroadcast   metric.Int64Counter
	SendFailures      metric.Int64Counter
	BroadcastDuration metric.Float64Histogram
	EventsRecorded    metric.Int64Counter
	EventsRejected    metric.Int64Counter
}

// NewMetrics creates all metric instruments from the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates all metric instruments from the given provider.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ConnectionsOpened, err = meter.Int64Counter("homemonitor.ws.connections_opened",
		metric.WithDescription("Number of subscriber connections accepted"))
	if err != nil {
		return nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter("homemonitor.ws.connections_active",
		metric.WithDescription("Number of subscriber connections currently registered"))
	if err != nil {
		return nil, err
	}

	m.AlertsBroadcast, err = meter.Int64Counter("homemonitor.ws.deliveries",
		metric.WithDescription("Number of per-connection sends that succeeded"))
	if err != nil {
		return nil, err
	}

	m.SendFailures, err = meter.Int64Counter("homemonitor.ws.send_failures",
		metric.WithDescription("Number of per-connection sends that failed"))
	if err != nil {
		return nil, err
	}

	m.BroadcastDuration, err = meter.Float64Histogram("homemonitor.ws.broadcast_duration_seconds",
		metric.WithDescription("Wall time of one fan-out across all connections"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.EventsRecorded, err = meter.Int64Counter("homemonitor.events.recorded",
		metric.WithDescription("Number of motion events persisted"))
	if err != nil {
		return nil, err
	}

	m.EventsRejected, err = meter.Int64Counter("homemonitor.events.rejected",
		metric.WithDescription("Number of motion reports rejected before persistence"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ConnectionAdded records a newly registered subscriber.
func (m *Metrics) ConnectionAdded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Add(ctx, 1)
	m.ActiveConnections.Add(ctx, 1)
}

// ConnectionRemoved records a subscriber leaving the registry.
func (m *Metrics) ConnectionRemoved(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1)
}

// RecordBroadcast records the outcome of one fan-out.
func (m *Metrics) RecordBroadcast(ctx context.Context, delivered, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AlertsBroadcast.Add(ctx, int64(delivered))
	m.SendFailures.Add(ctx, int64(failed))
	m.BroadcastDuration.Record(ctx, elapsed.Seconds())
}

// RecordEvent records a persisted event from the given ingest source.
func (m *Metrics) RecordEvent(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.EventsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordRejected records a report dropped by validation or decoding.
func (m *Metrics) RecordRejected(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.EventsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
