package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestHandleWSLifecycle(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitFor(t, func() bool { return hub.Count() == 2 })

	ev := motion.Event{ID: 1, SensorID: "S1", EventType: "motion_detected", DetectedAt: time.Now().UTC(), Location: "Kitchen"}
	hub.BroadcastAlert(context.Background(), ev)

	for name, c := range map[string]*websocket.Conn{"a": a, "b": b} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		typ, data, err := c.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("%s read: %v", name, err)
		}
		if typ != websocket.MessageText {
			t.Errorf("%s: expected text frame, got %v", name, typ)
		}
		msg, err := Decode(data)
		if err != nil || msg.Kind != KindMotionAlert || msg.Alert.SensorID != "S1" {
			t.Errorf("%s: unexpected frame %s (%v)", name, data, err)
		}
	}

	_ = a.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.Count() == 1 })

	_ = b.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestHandleWSRejectsPlainHTTP(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Fatal("plain GET must not be upgraded")
	}
	if hub.Count() != 0 {
		t.Errorf("expected no registration, got %d", hub.Count())
	}
}
