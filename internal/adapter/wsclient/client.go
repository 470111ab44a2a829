package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Strob0t/HomeMonitor/internal/adapter/ws"
	"github.com/Strob0t/HomeMonitor/internal/domain/connection"
)

// Defaults for the reconnect schedule and connection upkeep.
const (
	DefaultInitialBackoff   = 2 * time.Second
	DefaultMaxBackoff       = 30 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultKeepAlive        = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithBackoff sets the first reconnect delay and its cap. The delay doubles
// after every failed attempt and resets after a successful connect.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = maxDelay
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHandshakeTimeout bounds each dial. Zero leaves only the caller's context.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// WithKeepAlive sets the ping interval while connected. Zero disables pings.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Client) { c.keepAlive = d }
}

// session is one established connection and its receive loop.
type session struct {
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
	closing atomic.Bool
}

// Client is a reconnecting subscriber. Connect and Disconnect are
// serialized; status changes, notices and received messages are delivered
// in order on Events.
type Client struct {
	dialer Dialer
	log    *slog.Logger

	initialBackoff   time.Duration
	maxBackoff       time.Duration
	handshakeTimeout time.Duration
	keepAlive        time.Duration

	// opMu serializes Connect, Disconnect and reconnect attempts.
	opMu sync.Mutex

	// mu guards everything below. The receive loop only ever takes mu.
	mu       sync.Mutex
	status   connection.Status
	url      string
	manual   bool
	closed   bool
	sess     *session
	bo       *backoff.ExponentialBackOff
	driverID uint64
	driver   context.CancelFunc // running reconnect driver, nil if none

	root   context.Context
	cancel context.CancelFunc
	q      *queue
}

// New creates a disconnected client.
func New(dialer Dialer, opts ...Option) *Client {
	root, cancel := context.WithCancel(context.Background())
	c := &Client{
		dialer:           dialer,
		log:              slog.Default(),
		initialBackoff:   DefaultInitialBackoff,
		maxBackoff:       DefaultMaxBackoff,
		handshakeTimeout: DefaultHandshakeTimeout,
		keepAlive:        DefaultKeepAlive,
		status:           connection.StatusDisconnected,
		root:             root,
		cancel:           cancel,
		q:                newQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = c.initialBackoff
	}
	c.bo = &backoff.ExponentialBackOff{
		InitialInterval:     c.initialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.maxBackoff,
	}
	c.bo.Reset()
	return c
}

// Events returns the ordered event stream. It is closed after Close once
// every queued event has been received.
func (c *Client) Events() <-chan Event { return c.q.out }

// Status returns the current connection status.
func (c *Client) Status() connection.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// URL returns the last URL passed to Connect.
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Reconnecting reports whether the reconnect driver is running.
func (c *Client) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver != nil
}

// Connect tears down any existing connection and dials url. On failure the
// status becomes Error, an *EstablishError is returned and the reconnect
// driver takes over.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.url = url
	c.manual = false
	c.stopDriverLocked()
	c.mu.Unlock()

	_ = c.teardown(ctx, false)
	return c.establish(ctx, url, 0)
}

// Disconnect closes the connection on purpose: no reconnect follows until
// the next Connect. It returns only ctx's error.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.manual = true
	c.stopDriverLocked()
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	err := c.teardown(ctx, true)

	c.mu.Lock()
	c.setStatusLocked(connection.StatusDisconnected)
	c.mu.Unlock()
	return err
}

// Close disconnects and releases the client. Events is closed after the
// remaining events are drained.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Disconnect(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.q.close()
	return err
}

// establish dials url and starts the receive loop. driver is the id of the
// reconnect driver making the attempt, zero for Connect. Callers hold opMu.
func (c *Client) establish(ctx context.Context, url string, driver uint64) error {
	c.mu.Lock()
	c.setStatusLocked(connection.StatusConnecting)
	c.mu.Unlock()

	dialCtx := ctx
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}
	conn, err := c.dialer.Dial(dialCtx, url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil && (c.manual || c.closed) {
		_ = conn.CloseNow()
		err = ErrAborted
	}
	if err != nil {
		if errors.Is(err, ErrAborted) || c.manual {
			c.setStatusLocked(connection.StatusDisconnected)
			return &EstablishError{URL: url, Err: err}
		}
		c.setStatusLocked(connection.StatusError)
		c.noticeLocked(NoticeError, "Connection error: "+err.Error(), err)
		c.log.Warn("websocket connect failed", "url", url, "error", err)
		c.startDriverLocked()
		return &EstablishError{URL: url, Err: err}
	}

	sctx, cancel := context.WithCancel(c.root)
	s := &session{conn: conn, cancel: cancel, done: make(chan struct{})}
	c.sess = s
	c.bo.Reset()
	c.setStatusLocked(connection.StatusConnected)
	if driver != 0 {
		if c.driverID == driver {
			c.driver = nil
		}
		c.noticeLocked(NoticeSuccess, "Reconnected successfully!", nil)
	}
	c.log.Info("websocket connected", "url", url)

	go c.receive(sctx, s)
	if c.keepAlive > 0 {
		go c.ping(sctx, conn)
	}
	return nil
}

// teardown closes the current session and waits for its receive loop.
// Callers hold opMu.
func (c *Client) teardown(ctx context.Context, graceful bool) error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	s.closing.Store(true)
	if graceful {
		done := make(chan struct{})
		go func() {
			_ = s.conn.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	s.cancel()
	_ = s.conn.CloseNow()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) receive(ctx context.Context, s *session) {
	defer close(s.done)
	defer s.cancel()

	var asm assembler
	for {
		f, err := s.conn.Read(ctx)
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil {
				return
			}
			c.mu.Lock()
			if errors.Is(err, ErrPeerClosed) {
				c.log.Info("websocket closed by server")
			} else {
				c.noticeLocked(NoticeError, "Receive error: "+err.Error(), &ReceiveError{Err: err})
				c.setStatusLocked(connection.StatusError)
				c.log.Warn("websocket receive failed", "error", err)
			}
			c.mu.Unlock()
			break
		}

		typ, data, ok := asm.push(f)
		if !ok || typ != MessageText {
			continue
		}
		msg, derr := ws.Decode(data)
		if derr != nil {
			msg.Err = derr
			c.log.Warn("undecodable frame", "error", derr)
		}
		c.mu.Lock()
		if !s.closing.Load() {
			c.q.push(Event{Kind: EventMessage, Message: msg, Err: derr})
		}
		c.mu.Unlock()
	}

	_ = s.conn.CloseNow()

	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closing.Load() || c.manual || c.sess != s {
		return
	}
	c.sess = nil
	c.setStatusLocked(connection.StatusDisconnected)
	c.startDriverLocked()
}

func (c *Client) ping(ctx context.Context, conn Conn) {
	t := time.NewTicker(c.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, c.keepAlive)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.log.Debug("websocket ping failed", "error", err)
			}
		}
	}
}

// startDriverLocked starts the reconnect driver unless one is running or
// the client was disconnected on purpose.
func (c *Client) startDriverLocked() {
	if c.manual || c.closed || c.driver != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.root)
	c.driverID++
	c.driver = cancel
	go c.reconnect(ctx, cancel, c.driverID)
}

func (c *Client) stopDriverLocked() {
	if c.driver != nil {
		c.driver()
		c.driver = nil
	}
}

// reconnect retries the last URL with growing delays until it connects or
// ctx is cancelled.
func (c *Client) reconnect(ctx context.Context, cancel context.CancelFunc, id uint64) {
	defer cancel()
	defer func() {
		c.mu.Lock()
		if c.driverID == id {
			c.driver = nil
		}
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if ctx.Err() != nil || c.manual || c.closed || c.status == connection.StatusConnected {
			c.mu.Unlock()
			return
		}
		delay := c.bo.NextBackOff()
		url := c.url
		c.noticeLocked(NoticeWarning, fmt.Sprintf("Reconnecting in %s...", formatDelay(delay)), nil)
		c.mu.Unlock()

		c.log.Info("websocket reconnect scheduled", "url", url, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.opMu.Lock()
		if ctx.Err() != nil {
			c.opMu.Unlock()
			return
		}
		err := c.establish(ctx, url, id)
		c.opMu.Unlock()
		if err == nil {
			return
		}
	}
}

// setStatusLocked records s and emits a status event if it changed.
func (c *Client) setStatusLocked(s connection.Status) {
	if c.status == s {
		return
	}
	prev := c.status
	c.status = s
	c.q.push(Event{Kind: EventStatus, Status: s, Previous: prev})
	c.log.Debug("websocket status changed", "from", prev.String(), "to", s.String())
}

func (c *Client) noticeLocked(level NoticeLevel, text string, err error) {
	c.q.push(Event{Kind: EventNotice, Notice: text, Level: level, Err: err})
}

func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		n := int(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	return d.String()
}
