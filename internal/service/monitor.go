package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/adapter/ws"
	"github.com/Strob0t/HomeMonitor/internal/adapter/wsclient"
	"github.com/Strob0t/HomeMonitor/internal/domain"
	"github.com/Strob0t/HomeMonitor/internal/domain/connection"
	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// Monitor guard errors.
var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// DefaultStatsInterval is how often a connected Monitor pulls stats.
const DefaultStatsInterval = 10 * time.Second

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	// StatsInterval defaults to DefaultStatsInterval.
	StatsInterval time.Duration
	// NewFetcher builds the stats fetcher for the API base URL derived
	// from the websocket URL. Nil disables stats polling.
	NewFetcher func(baseURL string) StatsFetcher
	// LogSize defaults to DefaultLogBookSize.
	LogSize int
	// OnEntry is called for every activity log entry.
	OnEntry func(LogEntry)
}

// MonitorSnapshot is a point-in-time view of the Monitor's counters.
type MonitorSnapshot struct {
	Status        connection.Status
	TotalMessages int
	MotionEvents  int
	Stats         motion.DashboardStats
	HasStats      bool
}

type pullResult struct {
	stats motion.DashboardStats
	err   error
}

// Monitor owns a reconnecting client and is its single consumer: messages,
// notices, status changes and stats pulls are all applied by Run, in order.
// Stats are polled only while the client is connected.
type Monitor struct {
	client *wsclient.Client
	opts   MonitorOptions
	book   *LogBook
	pulls  chan pullResult

	mu      sync.Mutex
	poller  *StatsPoller
	fetcher StatsFetcher
	baseURL string
	snap    MonitorSnapshot
}

// NewMonitor creates a Monitor for client.
func NewMonitor(client *wsclient.Client, opts MonitorOptions) *Monitor {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	return &Monitor{
		client: client,
		opts:   opts,
		book:   NewLogBook(opts.LogSize, opts.OnEntry),
		pulls:  make(chan pullResult, 4),
		snap:   MonitorSnapshot{Status: client.Status()},
	}
}

// Log returns the activity log.
func (m *Monitor) Log() *LogBook { return m.book }

// Snapshot returns the current counters.
func (m *Monitor) Snapshot() MonitorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// BaseURL returns the API base URL derived by the last Connect.
func (m *Monitor) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseURL
}

// Connect connects the client to wsURL and points stats polling at the
// matching HTTP API.
func (m *Monitor) Connect(ctx context.Context, wsURL string) error {
	if strings.TrimSpace(wsURL) == "" {
		m.book.Add("Please enter a valid WebSocket URL", LevelWarning)
		return fmt.Errorf("%w: websocket url is required", domain.ErrValidation)
	}
	if m.client.Status() == connection.StatusConnected {
		m.book.Add("Already connected!", LevelWarning)
		return ErrAlreadyConnected
	}

	base, err := HTTPBaseURL(wsURL)
	if err != nil {
		m.book.Add(fmt.Sprintf("Invalid URL format: %v", err), LevelError)
		return err
	}
	m.book.Add(fmt.Sprintf("Connecting to %s...", wsURL), LevelInfo)
	m.book.Add(fmt.Sprintf("API endpoint set to: %s/api", base), LevelInfo)

	m.setPoller(base)
	return m.client.Connect(ctx, wsURL)
}

// Disconnect stops the client and any pending reconnect.
func (m *Monitor) Disconnect(ctx context.Context) error {
	if m.client.Status() != connection.StatusConnected && !m.client.Reconnecting() {
		m.book.Add("Not connected!", LevelWarning)
		return ErrNotConnected
	}
	m.book.Add("Disconnecting...", LevelInfo)
	m.stopPoller()
	return m.client.Disconnect(ctx)
}

// RefreshStats pulls the server stats once, outside the polling schedule.
// The result is applied by Run like any scheduled pull. It needs the API
// endpoint set by a previous Connect.
func (m *Monitor) RefreshStats(ctx context.Context) error {
	m.mu.Lock()
	f := m.fetcher
	m.mu.Unlock()
	if f == nil {
		m.book.Add("Not connected!", LevelWarning)
		return ErrNotConnected
	}

	m.book.Add("Refreshing server stats...", LevelInfo)
	stats, err := f.DashboardStats(ctx)
	m.deliverPull(pullResult{stats: stats, err: err})
	return err
}

// ClearLogs empties the activity log and resets the message counters.
func (m *Monitor) ClearLogs() {
	m.book.Clear()
	m.mu.Lock()
	m.snap.TotalMessages = 0
	m.snap.MotionEvents = 0
	m.mu.Unlock()
	m.book.Add("Logs cleared", LevelInfo)
}

// Run consumes client events until ctx is done or the client is closed.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stopPoller()

	events := m.client.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.handle(ctx, ev)
		case r := <-m.pulls:
			m.applyPull(r)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev wsclient.Event) {
	switch ev.Kind {
	case wsclient.EventMessage:
		m.applyMessage(ev.Message)
	case wsclient.EventNotice:
		m.book.Add(ev.Notice, noticeLevel(ev.Level))
	case wsclient.EventStatus:
		m.applyStatus(ctx, ev.Status)
	}
}

func (m *Monitor) applyMessage(msg ws.Message) {
	m.mu.Lock()
	m.snap.TotalMessages++
	if msg.Kind == ws.KindMotionAlert && msg.Alert != nil {
		m.snap.MotionEvents++
	}
	m.mu.Unlock()

	if msg.Err != nil {
		slog.Debug("undecodable frame", "error", msg.Err)
	}
	if msg.Kind != ws.KindMotionAlert || msg.Alert == nil {
		m.book.Add(msg.Raw, LevelInfo)
		return
	}

	a := msg.Alert
	text := "Motion detected! Sensor: " + a.SensorID
	if a.HasKnownLocation() {
		text += " at " + a.Location
	}
	m.book.AddMotion(text, a.SensorID, a.Location)
	m.book.Add(fmt.Sprintf("Event Type: %s | Time: %s", a.EventType, a.DetectedAt.Format(time.TimeOnly)), LevelInfo)
}

func (m *Monitor) applyStatus(ctx context.Context, s connection.Status) {
	m.mu.Lock()
	m.snap.Status = s
	m.mu.Unlock()

	switch s {
	case connection.StatusConnected:
		m.book.Add("Connected to server", LevelSuccess)
		m.startPoller(ctx)
	case connection.StatusConnecting:
		m.book.Add("Connecting...", LevelInfo)
		m.stopPoller()
	case connection.StatusDisconnected:
		m.book.Add("Disconnected from server", LevelWarning)
		m.stopPoller()
	case connection.StatusError:
		m.book.Add("Connection error", LevelError)
		m.stopPoller()
	}
}

func (m *Monitor) applyPull(r pullResult) {
	if r.err != nil {
		slog.Warn("stats pull failed", "error", r.err)
		m.book.Add(fmt.Sprintf("Failed to fetch server stats: %v", r.err), LevelWarning)
		return
	}
	m.mu.Lock()
	m.snap.Stats = r.stats
	m.snap.HasStats = true
	m.mu.Unlock()

	s := r.stats
	m.book.Add(fmt.Sprintf("Server stats - Total: %d | 24h: %d | Hour: %d | Sensors: %d | Clients: %d",
		s.TotalEvents, s.EventsLast24h, s.EventsLastHour, s.ActiveSensors, s.ConnectedClients), LevelInfo)
}

// setPoller replaces the poller for a new API base URL.
func (m *Monitor) setPoller(base string) {
	m.mu.Lock()
	old := m.poller
	m.poller = nil
	m.fetcher = nil
	m.baseURL = base
	if m.opts.NewFetcher != nil {
		m.fetcher = m.opts.NewFetcher(base)
		m.poller = NewStatsPoller(m.fetcher, m.opts.StatsInterval,
			func(s motion.DashboardStats) { m.deliverPull(pullResult{stats: s}) },
			func(err error) { m.deliverPull(pullResult{err: err}) },
		)
	}
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// deliverPull hands a result to Run. It never blocks: when Run is behind,
// the result is dropped and the next tick brings a fresh one.
func (m *Monitor) deliverPull(r pullResult) {
	select {
	case m.pulls <- r:
	default:
	}
}

func (m *Monitor) startPoller(ctx context.Context) {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()
	if p != nil {
		p.Start(ctx)
	}
}

func (m *Monitor) stopPoller() {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Polling reports whether stats are being polled.
func (m *Monitor) Polling() bool {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()
	return p != nil && p.Running()
}

func noticeLevel(l wsclient.NoticeLevel) LogLevel {
	switch l {
	case wsclient.NoticeWarning:
		return LevelWarning
	case wsclient.NoticeError:
		return LevelError
	case wsclient.NoticeSuccess:
		return LevelSuccess
	default:
		return LevelInfo
	}
}

// HTTPBaseURL maps a websocket URL to the HTTP origin serving the API:
// ws becomes http and wss becomes https.
func HTTPBaseURL(wsURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(wsURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", domain.ErrValidation, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", domain.ErrValidation)
	}
	return u.Scheme + "://" + u.Host, nil
}
