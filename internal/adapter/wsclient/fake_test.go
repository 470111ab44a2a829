package wsclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/connection"
)

type fakeConn struct {
	in       chan Fragment
	errc     chan error
	closed   chan struct{}
	once     sync.Once
	graceful chan struct{}
	gOnce    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:       make(chan Fragment, 16),
		errc:     make(chan error, 1),
		closed:   make(chan struct{}),
		graceful: make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) (Fragment, error) {
	select {
	case fr := <-f.in:
		return fr, nil
	case err := <-f.errc:
		return Fragment{}, err
	case <-f.closed:
		return Fragment{}, net.ErrClosed
	case <-ctx.Done():
		return Fragment{}, ctx.Err()
	}
}

func (f *fakeConn) Ping(context.Context) error { return nil }

func (f *fakeConn) Close() error {
	f.gOnce.Do(func() { close(f.graceful) })
	return f.CloseNow()
}

func (f *fakeConn) CloseNow() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sendText(s string) {
	f.in <- Fragment{Type: MessageText, Data: []byte(s), Final: true}
}

type fakeDialer struct {
	mu        sync.Mutex
	reachable bool
	dials     int
	conns     chan *fakeConn
}

func newFakeDialer(reachable bool) *fakeDialer {
	return &fakeDialer{reachable: reachable, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	ok := d.reachable
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setReachable(v bool) {
	d.mu.Lock()
	d.reachable = v
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}

func newTestClient(d Dialer, opts ...Option) *Client {
	base := []Option{
		WithBackoff(10*time.Millisecond, 40*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithKeepAlive(0),
	}
	return New(d, append(base, opts...)...)
}

// nextEvent returns the next event or fails after a timeout.
func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e, ok := <-c.Events():
		if !ok {
			t.Fatal("event stream closed")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// awaitEvent skips events until match returns true and returns the skipped ones.
func awaitEvent(t *testing.T, c *Client, match func(Event) bool) (Event, []Event) {
	t.Helper()
	var skipped []Event
	for {
		e := nextEvent(t, c)
		if match(e) {
			return e, skipped
		}
		skipped = append(skipped, e)
	}
}

func isStatus(s connection.Status) func(Event) bool {
	return func(e Event) bool { return e.Kind == EventStatus && e.Status == s }
}

func isNotice(prefix string) func(Event) bool {
	return func(e Event) bool { return e.Kind == EventNotice && strings.HasPrefix(e.Notice, prefix) }
}

func isMessage(e Event) bool { return e.Kind == EventMessage }

// drain discards events until the stream closes.
func drain(c *Client) {
	go func() {
		for range c.Events() {
		}
	}()
}
