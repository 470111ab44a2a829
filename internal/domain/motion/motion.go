// Package motion defines the motion detection event and the aggregates
// derived from it.
package motion

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain"
)

// Defaults applied when a detection arrives without the field.
const (
	DefaultLocation  = "unknown"
	DefaultEventType = "detected"
)

const (
	maxSensorIDLen  = 128
	maxEventTypeLen = 64
	maxLocationLen  = 256
)

// Event is one physical detection. It is produced once, stored, then
// broadcast; it is never mutated afterwards.
type Event struct {
	ID         int64     `json:"id"`
	SensorID   string    `json:"sensorId"`
	EventType  string    `json:"eventType"`
	DetectedAt time.Time `json:"detectedAt"`
	Location   string    `json:"location"`
}

// CreateRequest is an incoming detection report. Optional fields are
// pointers so that "absent" and "empty" can be told apart.
type CreateRequest struct {
	SensorID   string     `json:"sensorId"`
	EventType  string     `json:"eventType"`
	DetectedAt *time.Time `json:"detectedAt,omitempty"`
	Location   *string    `json:"location,omitempty"`
}

// Validate checks the request fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.SensorID) == "" {
		return fmt.Errorf("%w: sensorId is required", domain.ErrValidation)
	}
	if len(r.SensorID) > maxSensorIDLen {
		return fmt.Errorf("%w: sensorId exceeds %d characters", domain.ErrValidation, maxSensorIDLen)
	}
	if len(r.EventType) > maxEventTypeLen {
		return fmt.Errorf("%w: eventType exceeds %d characters", domain.ErrValidation, maxEventTypeLen)
	}
	if r.Location != nil && len(*r.Location) > maxLocationLen {
		return fmt.Errorf("%w: location exceeds %d characters", domain.ErrValidation, maxLocationLen)
	}
	return nil
}

// ToEvent builds the unsaved Event, applying defaults. now is used when the
// request carries no detection time.
func (r *CreateRequest) ToEvent(now time.Time) Event {
	ev := Event{
		SensorID:   strings.TrimSpace(r.SensorID),
		EventType:  r.EventType,
		DetectedAt: now.UTC(),
		Location:   DefaultLocation,
	}
	if ev.EventType == "" {
		ev.EventType = DefaultEventType
	}
	if r.DetectedAt != nil && !r.DetectedAt.IsZero() {
		ev.DetectedAt = r.DetectedAt.UTC()
	}
	if r.Location != nil && *r.Location != "" {
		ev.Location = *r.Location
	}
	return ev
}

// HasKnownLocation reports whether the event carries a real location.
func (e Event) HasKnownLocation() bool {
	return e.Location != "" && e.Location != DefaultLocation
}

// DashboardStats is the aggregate view served to dashboards and pulled by
// subscribers to reconcile their local counters.
type DashboardStats struct {
	TotalEvents      int `json:"totalEvents"`
	EventsLast24h    int `json:"eventsLast24h"`
	EventsLastHour   int `json:"eventsLastHour"`
	ActiveSensors    int `json:"activeSensors"`
	ConnectedClients int `json:"connectedClients"`
}

// SensorSummary aggregates the events of one sensor.
type SensorSummary struct {
	SensorID   string    `json:"sensorId"`
	LastSeen   time.Time `json:"lastSeen"`
	EventCount int       `json:"eventCount"`
}

// ListFilter controls which events are listed. A zero Limit means no limit.
type ListFilter struct {
	Limit int
}
