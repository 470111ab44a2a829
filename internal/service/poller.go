package service

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// StatsFetcher pulls the dashboard aggregate. Implementations apply their
// own request timeout.
type StatsFetcher interface {
	DashboardStats(ctx context.Context) (motion.DashboardStats, error)
}

// StatsPoller fetches stats immediately on Start and then every interval
// until Stop. Failures go to onError and are retried on the next tick.
type StatsPoller struct {
	fetcher  StatsFetcher
	interval time.Duration
	onStats  func(motion.DashboardStats)
	onError  func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStatsPoller creates a stopped poller. Callbacks run on the poller's
// goroutine and may be nil.
func NewStatsPoller(fetcher StatsFetcher, interval time.Duration, onStats func(motion.DashboardStats), onError func(error)) *StatsPoller {
	if onStats == nil {
		onStats = func(motion.DashboardStats) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &StatsPoller{
		fetcher:  fetcher,
		interval: interval,
		onStats:  onStats,
		onError:  onError,
	}
}

// Start begins polling. It is a no-op while already running.
func (p *StatsPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.run(ctx, done)
}

// Stop cancels polling and waits for an in-flight pull to return.
func (p *StatsPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poller is started.
func (p *StatsPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *StatsPoller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.pull(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *StatsPoller) pull(ctx context.Context) {
	stats, err := p.fetcher.DashboardStats(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.onError(err)
		return
	}
	p.onStats(stats)
}
