package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
	"github.com/Strob0t/HomeMonitor/internal/port/broadcast"
	"github.com/Strob0t/HomeMonitor/internal/service"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handlers and the services they call.
type Handlers struct {
	Alerts  *service.AlertService
	Stats   *service.StatsService
	Clients broadcast.Counter
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck
}

// CreateMotionEvent handles POST /api/motion-events
func (h *Handlers) CreateMotionEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[motion.CreateRequest](w, r)
	if !ok {
		return
	}

	ev, err := h.Alerts.Record(r.Context(), service.SourceHTTP, &req)
	if err != nil {
		writeDomainError(w, r, err, "motion event not found")
		return
	}

	w.Header().Set("Location", "/api/motion-events/"+strconv.FormatInt(ev.ID, 10))
	writeJSON(w, http.StatusCreated, ev)
}

// ListMotionEvents handles GET /api/motion-events?limit=N
func (h *Handlers) ListMotionEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitQuery(r)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	handleList(func(ctx context.Context) ([]motion.Event, error) {
		return h.Alerts.List(ctx, motion.ListFilter{Limit: limit})
	})(w, r)
}

// GetMotionEvent handles GET /api/motion-events/{id}
func (h *Handlers) GetMotionEvent(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Alerts.Get, "motion event not found")(w, r)
}

// DeleteMotionEvents handles DELETE /api/motion-events
func (h *Handlers) DeleteMotionEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Alerts.DeleteAll(r.Context()); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "all events deleted"})
}

// ListSensors handles GET /api/sensors
func (h *Handlers) ListSensors(w http.ResponseWriter, r *http.Request) {
	handleList(h.Alerts.Sensors)(w, r)
}

// DashboardStats handles GET /api/dashboard/stats
func (h *Handlers) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.Dashboard(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type healthResponse struct {
	Status  string            `json:"status"`
	Clients int               `json:"clients"`
	Checks  map[string]string `json:"checks,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

// Health handles GET /health. It answers 503 when any dependency check fails.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.Clients != nil {
		resp.Clients = h.Clients.Count()
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	if len(h.Checks) > 0 {
		resp.Checks = make(map[string]string, len(h.Checks))
	}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
