package otel

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Strob0t/HomeMonitor/internal/config"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetricsFrom(mp)
	if err != nil {
		t.Fatalf("NewMetricsFrom: %v", err)
	}
	ctx := context.Background()

	m.ConnectionAdded(ctx)
	m.ConnectionAdded(ctx)
	m.ConnectionRemoved(ctx)
	m.RecordBroadcast(ctx, 3, 1, 10*time.Millisecond)
	m.RecordEvent(ctx, "http")
	m.RecordRejected(ctx, "mqtt")

	sums := collectSums(t, reader)

	want := map[string]int64{
		"homemonitor.ws.connections_opened": 2,
		"homemonitor.ws.connections_active": 1,
		"homemonitor.ws.deliveries":         3,
		"homemonitor.ws.send_failures":      1,
		"homemonitor.events.recorded":       1,
		"homemonitor.events.rejected":       1,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s = %d, want %d", name, sums[name], v)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.ConnectionAdded(ctx)
	m.ConnectionRemoved(ctx)
	m.RecordBroadcast(ctx, 1, 1, time.Second)
	m.RecordEvent(ctx, "http")
	m.RecordRejected(ctx, "http")
}

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "test", config.OTEL{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
