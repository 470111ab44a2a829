// Package service contains application services.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	cfotel "github.com/Strob0t/HomeMonitor/internal/adapter/otel"
	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
	"github.com/Strob0t/HomeMonitor/internal/logger"
	"github.com/Strob0t/HomeMonitor/internal/port/broadcast"
	"github.com/Strob0t/HomeMonitor/internal/port/database"
	"github.com/Strob0t/HomeMonitor/internal/port/messagequeue"
)

// Ingest sources, used as metric and span attributes.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
	SourceNATS = "nats"
)

// AlertService records motion detections: persist first, then broadcast to
// connected subscribers, then publish on the queue.
type AlertService struct {
	store       database.MotionStore
	broadcaster broadcast.Broadcaster
	queue       messagequeue.Queue
	stats       *StatsService
	metrics     *cfotel.Metrics
	now         func() time.Time
}

// NewAlertService creates an AlertService.
func NewAlertService(store database.MotionStore, b broadcast.Broadcaster) *AlertService {
	return &AlertService{
		store:       store,
		broadcaster: b,
		now:         time.Now,
	}
}

// SetQueue enables publishing recorded events on motion.recorded.
func (s *AlertService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetStats lets recording invalidate the cached dashboard aggregate.
func (s *AlertService) SetStats(st *StatsService) { s.stats = st }

// SetMetrics attaches OTEL instruments.
func (s *AlertService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Record validates req, stores the event and broadcasts it. Nothing is
// broadcast unless the store accepted the event.
func (s *AlertService) Record(ctx context.Context, source string, req *motion.CreateRequest) (motion.Event, error) {
	ctx, span := cfotel.StartRecordSpan(ctx, source, req.SensorID)
	defer span.End()

	if err := req.Validate(); err != nil {
		s.metrics.RecordRejected(ctx, source)
		span.SetStatus(codes.Error, "validation")
		return motion.Event{}, err
	}

	ev, err := s.store.SaveEvent(ctx, req.ToEvent(s.now()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		return motion.Event{}, fmt.Errorf("save motion event: %w", err)
	}

	// The event is durable now; a client hanging up must not cut the
	// fan-out short.
	s.broadcaster.BroadcastAlert(context.WithoutCancel(ctx), ev)

	s.publish(ctx, ev)
	s.stats.Invalidate(ctx)
	s.metrics.RecordEvent(ctx, source)

	slog.Info("motion event recorded",
		append(logger.Attrs(ctx),
			"id", ev.ID,
			"sensor_id", ev.SensorID,
			"location", ev.Location,
			"source", source,
		)...,
	)
	return ev, nil
}

func (s *AlertService) publish(ctx context.Context, ev motion.Event) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal recorded event", "id", ev.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectMotionRecorded, data); err != nil {
		slog.Warn("publish recorded event", "id", ev.ID, "error", err)
	}
}

// Get returns one event. Missing ids yield domain.ErrNotFound.
func (s *AlertService) Get(ctx context.Context, id int64) (*motion.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// List returns events, newest first.
func (s *AlertService) List(ctx context.Context, f motion.ListFilter) ([]motion.Event, error) {
	return s.store.ListEvents(ctx, f)
}

// Sensors returns one summary per sensor that has reported.
func (s *AlertService) Sensors(ctx context.Context) ([]motion.SensorSummary, error) {
	return s.store.ListSensors(ctx)
}

// DeleteAll removes every stored event.
func (s *AlertService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAllEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete motion events: %w", err)
	}
	s.stats.Invalidate(ctx)
	slog.Info("motion events deleted", append(logger.Attrs(ctx), "count", n)...)
	return n, nil
}
