// Package broadcast defines the port for pushing motion alerts to connected subscribers.
package broadcast

import (
	"context"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
)

// Broadcaster sends a motion alert to every connected subscriber. It never
// fails: delivery is best-effort per subscriber.
type Broadcaster interface {
	BroadcastAlert(ctx context.Context, ev motion.Event)
}

// Counter reports the number of connected subscribers.
type Counter interface {
	Count() int
}
