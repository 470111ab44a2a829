// Package ws implements the server side of the real-time alert channel: the
// frame codec, the connection registry and the websocket upgrade handler.
package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/HomeMonitor/internal/adapter/otel"
	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// DefaultSendTimeout bounds a single per-connection send.
const DefaultSendTimeout = 5 * time.Second

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSendTimeout bounds each per-connection send. Zero disables the bound.
func WithSendTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.sendTimeout = d }
}

// WithMaxParallel caps concurrent sends during one Broadcast. Zero means no cap.
func WithMaxParallel(n int) HubOption {
	return func(h *Hub) { h.maxParallel = n }
}

// WithMetrics records connection and delivery metrics.
func WithMetrics(m *cfotel.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// Hub is the registry of live subscriber connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Transport

	sendTimeout time.Duration
	maxParallel int
	metrics     *cfotel.Metrics
}

// BroadcastResult summarizes one fan-out.
type BroadcastResult struct {
	Attempted int
	Delivered int
	Failed    int
	Skipped   int // registered but not open
}

// NewHub creates an empty registry.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns:       make(map[string]Transport),
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers t under id. An existing entry with the same id is replaced.
func (h *Hub) Add(id string, t Transport) {
	h.mu.Lock()
	_, replaced := h.conns[id]
	h.conns[id] = t
	h.mu.Unlock()

	if !replaced {
		h.metrics.ConnectionAdded(context.Background())
	}
}

// Remove unregisters id. Removing an unknown id is a no-op.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()

	if ok {
		h.metrics.ConnectionRemoved(context.Background())
	}
}

// RemoveIf unregisters id only while it still maps to t, so a handler
// whose entry was replaced does not drop the replacement.
func (h *Hub) RemoveIf(id string, t Transport) bool {
	h.mu.Lock()
	cur, ok := h.conns[id]
	ok = ok && cur == t
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()

	if ok {
		h.metrics.ConnectionRemoved(context.Background())
	}
	return ok
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

type target struct {
	id string
	t  Transport
}

func (h *Hub) snapshot() []target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]target, 0, len(h.conns))
	for id, t := range h.conns {
		out = append(out, target{id: id, t: t})
	}
	return out
}

// Broadcast sends data to every open connection concurrently and returns
// once every attempt has finished. Send failures are logged and counted but
// never returned, and a failing connection stays registered: removal belongs
// to the connection's own read loop.
func (h *Hub) Broadcast(ctx context.Context, data []byte) BroadcastResult {
	start := time.Now()
	targets := h.snapshot()

	ctx, span := cfotel.StartBroadcastSpan(ctx, len(targets))
	defer span.End()

	var g errgroup.Group
	if h.maxParallel > 0 {
		g.SetLimit(h.maxParallel)
	}

	var res BroadcastResult
	var delivered, failed atomic.Int64
	for _, tg := range targets {
		if !tg.t.IsOpen() {
			res.Skipped++
			continue
		}
		res.Attempted++
		g.Go(func() error {
			sendCtx := ctx
			if h.sendTimeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, h.sendTimeout)
				defer cancel()
			}
			if err := tg.t.SendText(sendCtx, data); err != nil {
				failed.Add(1)
				slog.Debug("websocket send failed", "conn_id", tg.id, "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Delivered = int(delivered.Load())
	res.Failed = int(failed.Load())
	h.metrics.RecordBroadcast(ctx, res.Delivered, res.Failed, time.Since(start))
	return res
}

// BroadcastAlert encodes ev once and broadcasts it.
func (h *Hub) BroadcastAlert(ctx context.Context, ev motion.Event) {
	frame, err := Encode(ev)
	if err != nil {
		slog.Error("motion alert encode failed", "event_id", ev.ID, "error", err)
		return
	}
	res := h.Broadcast(ctx, frame)
	slog.Debug("motion alert broadcast",
		"event_id", ev.ID,
		"sensor_id", ev.SensorID,
		"delivered", res.Delivered,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
}
