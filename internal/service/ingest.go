package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/HomeMonitor/internal/domain"
	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
	"github.com/Strob0t/HomeMonitor/internal/logger"
)

// Limiter decides whether another detection for key may be recorded.
type Limiter interface {
	Allow(key string) bool
}

// IngestService feeds detections arriving over MQTT and NATS into the
// AlertService.
type IngestService struct {
	alerts  *AlertService
	limiter Limiter
}

// NewIngestService creates an IngestService. limiter may be nil.
func NewIngestService(alerts *AlertService, limiter Limiter) *IngestService {
	return &IngestService{alerts: alerts, limiter: limiter}
}

// HandleQueue is a messagequeue.Handler for motion.detected.
// Permanently bad reports are dropped with a warning so the queue does not
// retry them; store failures are returned for redelivery.
func (s *IngestService) HandleQueue(ctx context.Context, subject string, data []byte) error {
	var req motion.CreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("drop undecodable detection", append(logger.Attrs(ctx), "subject", subject, "error", err)...)
		return nil
	}
	return s.record(ctx, SourceNATS, &req)
}

// HandleMQTT is an mqtt.Handler. The payload is a JSON detection report; an
// empty payload is a bare detection. A missing sensor id is taken from the
// last topic segment (homemonitor/motion/<sensor>).
func (s *IngestService) HandleMQTT(ctx context.Context, topic string, payload []byte) error {
	var req motion.CreateRequest
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("decode mqtt payload on %s: %w", topic, err)
		}
	}
	if strings.TrimSpace(req.SensorID) == "" {
		req.SensorID = sensorFromTopic(topic)
	}
	return s.record(ctx, SourceMQTT, &req)
}

func (s *IngestService) record(ctx context.Context, source string, req *motion.CreateRequest) error {
	if s.limiter != nil && !s.limiter.Allow(req.SensorID) {
		slog.Warn("detection rate limited", "sensor_id", req.SensorID, "source", source)
		return nil
	}
	_, err := s.alerts.Record(ctx, source, req)
	if errors.Is(err, domain.ErrValidation) {
		slog.Warn("drop invalid detection", "source", source, "error", err)
		return nil
	}
	return err
}

func sensorFromTopic(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
