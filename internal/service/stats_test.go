package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

func TestStatsService_IncludesLiveClientCount(t *testing.T) {
	now := time.Now()
	store := &memStore{events: []motion.Event{
		{ID: 1, SensorID: "a", DetectedAt: now.Add(-30 * time.Minute)},
		{ID: 2, SensorID: "b", DetectedAt: now.Add(-2 * time.Hour)},
		{ID: 3, SensorID: "a", DetectedAt: now.Add(-48 * time.Hour)},
	}}
	counter := &recordingBroadcaster{clients: 4}
	svc := NewStatsService(store, counter, nil, 0)
	svc.now = func() time.Time { return now }

	got, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	want := motion.DashboardStats{TotalEvents: 3, EventsLast24h: 2, EventsLastHour: 1, ActiveSensors: 2, ConnectedClients: 4}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestStatsService_CachesAggregateNotClientCount(t *testing.T) {
	store := &memStore{}
	counter := &recordingBroadcaster{clients: 1}
	svc := NewStatsService(store, counter, newMemCache(), time.Minute)

	if _, err := svc.Dashboard(context.Background()); err != nil {
		t.Fatal(err)
	}
	counter.mu.Lock()
	counter.clients = 7
	counter.mu.Unlock()

	got, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if store.aggregateCalls() != 1 {
		t.Fatalf("expected one aggregate query, got %d", store.aggregateCalls())
	}
	if got.ConnectedClients != 7 {
		t.Fatalf("expected live client count 7, got %d", got.ConnectedClients)
	}
}

func TestStatsService_CacheErrorFallsThrough(t *testing.T) {
	store := &memStore{}
	c := newMemCache()
	c.getErr = errors.New("cache down")
	svc := NewStatsService(store, nil, c, time.Minute)

	if _, err := svc.Dashboard(context.Background()); err != nil {
		t.Fatalf("expected fallback to store, got %v", err)
	}
	if store.aggregateCalls() != 1 {
		t.Fatalf("expected store queried, got %d calls", store.aggregateCalls())
	}
}

func TestStatsService_InvalidateNilSafe(t *testing.T) {
	var svc *StatsService
	svc.Invalidate(context.Background())
}
