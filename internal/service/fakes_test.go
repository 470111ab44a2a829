package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain"
	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
	"github.com/Strob0t/HomeMonitor/internal/port/messagequeue"
)

var errStoreDown = errors.New("store unavailable")

// memStore implements database.MotionStore in memory.
type memStore struct {
	mu       sync.Mutex
	events   []motion.Event
	nextID   int64
	saveErr  error
	aggCalls int
}

func (m *memStore) SaveEvent(_ context.Context, ev motion.Event) (motion.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return motion.Event{}, m.saveErr
	}
	m.nextID++
	ev.ID = m.nextID
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *memStore) GetEvent(_ context.Context, id int64) (*motion.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			ev := m.events[i]
			return &ev, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) ListEvents(_ context.Context, f motion.ListFilter) ([]motion.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]motion.Event, len(m.events))
	copy(out, m.events)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) ListSensors(_ context.Context) ([]motion.SensorSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySensor := map[string]*motion.SensorSummary{}
	var order []string
	for _, ev := range m.events {
		s, ok := bySensor[ev.SensorID]
		if !ok {
			s = &motion.SensorSummary{SensorID: ev.SensorID}
			bySensor[ev.SensorID] = s
			order = append(order, ev.SensorID)
		}
		s.EventCount++
		if ev.DetectedAt.After(s.LastSeen) {
			s.LastSeen = ev.DetectedAt
		}
	}
	out := make([]motion.SensorSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *bySensor[id])
	}
	return out, nil
}

func (m *memStore) AggregateStats(_ context.Context, now time.Time) (motion.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggCalls++
	var st motion.DashboardStats
	sensors := map[string]bool{}
	for _, ev := range m.events {
		st.TotalEvents++
		if now.Sub(ev.DetectedAt) <= 24*time.Hour {
			st.EventsLast24h++
			sensors[ev.SensorID] = true
		}
		if now.Sub(ev.DetectedAt) <= time.Hour {
			st.EventsLastHour++
		}
	}
	st.ActiveSensors = len(sensors)
	return st, nil
}

func (m *memStore) DeleteAllEvents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.events))
	m.events = nil
	return n, nil
}

func (m *memStore) aggregateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggCalls
}

// recordingBroadcaster implements broadcast.Broadcaster and broadcast.Counter.
type recordingBroadcaster struct {
	mu      sync.Mutex
	alerts  []motion.Event
	ctxErrs []error
	clients int
}

func (b *recordingBroadcaster) BroadcastAlert(ctx context.Context, ev motion.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, ev)
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
}

func (b *recordingBroadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients
}

func (b *recordingBroadcaster) sent() []motion.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]motion.Event, len(b.alerts))
	copy(out, b.alerts)
	return out
}

type published struct {
	subject string
	data    []byte
}

// memQueue implements messagequeue.Queue, recording publishes.
type memQueue struct {
	mu   sync.Mutex
	msgs []published
}

func (q *memQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, published{subject: subject, data: data})
	return nil
}

func (q *memQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *memQueue) Drain() error      { return nil }
func (q *memQueue) Close() error      { return nil }
func (q *memQueue) IsConnected() bool { return true }

// memCache implements cache.Cache.
type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func strPtr(s string) *string { return &s }
