// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// MotionStore is the port interface for motion event persistence.
type MotionStore interface {
	// SaveEvent persists ev and returns it with its assigned ID.
	SaveEvent(ctx context.Context, ev motion.Event) (motion.Event, error)
	GetEvent(ctx context.Context, id int64) (*motion.Event, error)
	// ListEvents returns the newest events first.
	ListEvents(ctx context.Context, f motion.ListFilter) ([]motion.Event, error)
	ListSensors(ctx context.Context) ([]motion.SensorSummary, error)
	// AggregateStats counts events relative to now. ConnectedClients is left zero.
	AggregateStats(ctx context.Context, now time.Time) (motion.DashboardStats, error)
	// DeleteAllEvents removes every event and returns how many were removed.
	DeleteAllEvents(ctx context.Context) (int64, error)
}
