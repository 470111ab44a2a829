package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/HomeMonitor/internal/adapter/homeapi"
	"github.com/Strob0t/HomeMonitor/internal/adapter/ws"
	"github.com/Strob0t/HomeMonitor/internal/adapter/wsclient"
	"github.com/Strob0t/HomeMonitor/internal/domain"
	"github.com/Strob0t/HomeMonitor/internal/domain/connection"
	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

func TestHTTPBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://localhost:5000/ws", want: "http://localhost:5000"},
		{in: "wss://home.example.org/ws", want: "https://home.example.org"},
		{in: "WS://10.0.0.2:8080/ws?x=1", want: "http://10.0.0.2:8080"},
		{in: "http://localhost:5000", want: "http://localhost:5000"},
		{in: "ftp://localhost/ws", wantErr: true},
		{in: "ws:///ws", wantErr: true},
		{in: "://bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := HTTPBaseURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonitor_RejectsEmptyAndBadURL(t *testing.T) {
	c := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}))
	defer func() { _ = c.Close() }()
	m := NewMonitor(c, MonitorOptions{})

	if err := m.Connect(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty url, got %v", err)
	}
	if err := m.Connect(context.Background(), "ftp://x/ws"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad scheme, got %v", err)
	}
	if c.Status() != connection.StatusDisconnected {
		t.Fatalf("client must not be touched, status %v", c.Status())
	}
}

func TestMonitor_DisconnectWhenIdle(t *testing.T) {
	c := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}))
	defer func() { _ = c.Close() }()
	m := NewMonitor(c, MonitorOptions{})

	if err := m.Disconnect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	entries := m.Log().Entries()
	if len(entries) != 1 || entries[0].Level != LevelWarning {
		t.Fatalf("expected one warning entry, got %+v", entries)
	}
}

func TestMonitor_ClearLogsResetsCounters(t *testing.T) {
	c := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}))
	defer func() { _ = c.Close() }()
	m := NewMonitor(c, MonitorOptions{})

	m.applyMessage(ws.Message{Kind: ws.KindMotionAlert, Alert: &motion.Event{SensorID: "S1", Location: "unknown"}})
	m.applyMessage(ws.Message{Kind: ws.KindUnclassified, Raw: `{"type":"ping"}`})

	snap := m.Snapshot()
	if snap.TotalMessages != 2 || snap.MotionEvents != 1 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	entries := m.Log().Entries()
	if entries[0].Message != "Motion detected! Sensor: S1" {
		t.Errorf("unknown location must not be shown, got %q", entries[0].Message)
	}
	if entries[len(entries)-1].Message != `{"type":"ping"}` {
		t.Errorf("unclassified frame should be logged raw, got %q", entries[len(entries)-1].Message)
	}

	m.ClearLogs()
	snap = m.Snapshot()
	if snap.TotalMessages != 0 || snap.MotionEvents != 0 {
		t.Fatalf("expected counters reset, got %+v", snap)
	}
	if m.Log().TotalCount() != 1 {
		t.Fatalf("expected only the cleared notice, got %d entries", m.Log().TotalCount())
	}
}

// waitFor polls cond until it holds or a second passes.
func TestMonitor_RefreshStats(t *testing.T) {
	c := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}),
		wsclient.WithBackoff(time.Hour, time.Hour))
	f := &countingFetcher{}
	m := NewMonitor(c, MonitorOptions{
		NewFetcher: func(string) StatsFetcher { return f },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	defer func() {
		_ = c.Close()
		<-done
	}()

	if err := m.RefreshStats(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before Connect, got %v", err)
	}

	// The dial fails, but the API endpoint is known from the URL.
	_ = m.Connect(ctx, "ws://127.0.0.1:1/ws")

	if err := m.RefreshStats(ctx); err != nil {
		t.Fatalf("RefreshStats: %v", err)
	}
	waitFor(t, "refreshed stats applied", func() bool {
		s := m.Snapshot()
		return s.HasStats && s.Stats.TotalEvents == 1
	})
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one pull, got %d", n)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitor_EndToEnd(t *testing.T) {
	hub := ws.NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.HandleFunc("/api/dashboard/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(motion.DashboardStats{TotalEvents: 9, ConnectedClients: hub.Count()})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}),
		wsclient.WithBackoff(10*time.Millisecond, 40*time.Millisecond),
		wsclient.WithKeepAlive(0),
	)
	m := NewMonitor(client, MonitorOptions{
		StatsInterval: 20 * time.Millisecond,
		NewFetcher: func(base string) StatsFetcher {
			return homeapi.NewClient(base, homeapi.WithTimeout(time.Second))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if err := m.Connect(ctx, wsURL); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if m.BaseURL() != srv.URL {
		t.Errorf("expected API base %q, got %q", srv.URL, m.BaseURL())
	}
	waitFor(t, "connected status", func() bool { return m.Snapshot().Status == connection.StatusConnected })
	waitFor(t, "server registration", func() bool { return hub.Count() == 1 })

	if err := m.Connect(ctx, wsURL); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}

	hub.BroadcastAlert(ctx, motion.Event{
		ID:         1,
		SensorID:   "S1",
		EventType:  "motion_detected",
		DetectedAt: time.Now().UTC(),
		Location:   "Kitchen",
	})
	waitFor(t, "motion counter", func() bool { return m.Snapshot().MotionEvents == 1 })

	waitFor(t, "stats pull", func() bool {
		s := m.Snapshot()
		return s.HasStats && s.Stats.ConnectedClients == 1 && s.Stats.TotalEvents == 9
	})
	if !m.Polling() {
		t.Fatal("expected polling while connected")
	}

	if got := m.Snapshot().MotionEvents; got != 1 {
		t.Fatalf("one alert must count once, got %d", got)
	}
	found := false
	for _, e := range m.Log().Entries() {
		if e.IsMotionEvent && e.Message == "Motion detected! Sensor: S1 at Kitchen" && e.SensorID == "S1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("motion entry missing from log: %+v", m.Log().Entries())
	}

	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	waitFor(t, "disconnected status", func() bool { return m.Snapshot().Status == connection.StatusDisconnected })
	if m.Polling() {
		t.Fatal("poller must stop once disconnected")
	}
	waitFor(t, "server deregistration", func() bool { return hub.Count() == 0 })

	_ = client.Close()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned %v after client close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the client closed")
	}
}

func TestMonitor_PollerFollowsConnectivity(t *testing.T) {
	drop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		select {
		case <-drop:
			_ = c.Close(websocket.StatusGoingAway, "restarting")
		case <-r.Context().Done():
			_ = c.CloseNow()
		}
	}))
	defer srv.Close()

	f := &countingFetcher{}
	client := wsclient.New(wsclient.NewDialer(wsclient.DialerOptions{}),
		wsclient.WithBackoff(time.Hour, time.Hour),
		wsclient.WithKeepAlive(0),
	)
	defer func() { _ = client.Close() }()
	m := NewMonitor(client, MonitorOptions{
		StatsInterval: time.Hour,
		NewFetcher:    func(string) StatsFetcher { return f },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	if m.Polling() {
		t.Fatal("poller must not run before connecting")
	}
	if err := m.Connect(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "poller start", m.Polling)
	waitFor(t, "first pull", func() bool { return f.calls.Load() == 1 })

	// Server drops the subscriber: status leaves Connected, polling stops
	// while the (hour-long) reconnect wait runs.
	close(drop)
	waitFor(t, "disconnect observed", func() bool { return m.Snapshot().Status != connection.StatusConnected })
	waitFor(t, "poller stop", func() bool { return !m.Polling() })
	if !client.Reconnecting() {
		t.Fatal("expected reconnect driver after a dropped connection")
	}

	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect during reconnect wait: %v", err)
	}
	if client.Reconnecting() {
		t.Fatal("Disconnect must stop the reconnect driver")
	}
}
