package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
	"github.com/Strob0t/HomeMonitor/internal/port/broadcast"
	"github.com/Strob0t/HomeMonitor/internal/port/cache"
	"github.com/Strob0t/HomeMonitor/internal/port/database"
)

const statsCacheKey = "stats:dashboard"

// StatsService serves the dashboard aggregate. The stored counters are
// cached for a short TTL; the connected client count is always live.
type StatsService struct {
	store   database.MotionStore
	counter broadcast.Counter
	cache   cache.Cache
	ttl     time.Duration
	now     func() time.Time
}

// NewStatsService creates a StatsService. c may be nil to disable caching.
func NewStatsService(store database.MotionStore, counter broadcast.Counter, c cache.Cache, ttl time.Duration) *StatsService {
	return &StatsService{
		store:   store,
		counter: counter,
		cache:   c,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Dashboard returns the current aggregate.
func (s *StatsService) Dashboard(ctx context.Context) (motion.DashboardStats, error) {
	stats, ok := s.cached(ctx)
	if !ok {
		var err error
		stats, err = s.store.AggregateStats(ctx, s.now())
		if err != nil {
			return motion.DashboardStats{}, fmt.Errorf("aggregate stats: %w", err)
		}
		s.remember(ctx, stats)
	}
	if s.counter != nil {
		stats.ConnectedClients = s.counter.Count()
	}
	return stats, nil
}

// Invalidate drops the cached aggregate. Safe on a nil receiver.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		slog.Warn("stats cache invalidate failed", "error", err)
	}
}

func (s *StatsService) cached(ctx context.Context) (motion.DashboardStats, bool) {
	var stats motion.DashboardStats
	if s.cache == nil || s.ttl <= 0 {
		return stats, false
	}
	data, ok, err := s.cache.Get(ctx, statsCacheKey)
	if err != nil {
		slog.Warn("stats cache get failed", "error", err)
		return stats, false
	}
	if !ok {
		return stats, false
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		slog.Warn("stats cache entry corrupt", "error", err)
		return stats, false
	}
	return stats, true
}

func (s *StatsService) remember(ctx context.Context, stats motion.DashboardStats) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	stats.ConnectedClients = 0
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey, data, s.ttl); err != nil {
		slog.Warn("stats cache set failed", "error", err)
	}
}
