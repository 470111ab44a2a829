package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouteOptions tunes MountRoutes.
type RouteOptions struct {
	// RequestTimeout bounds every route except the websocket endpoint.
	RequestTimeout time.Duration
	// IngestLimit wraps POST /api/motion-events; nil disables it.
	IngestLimit func(http.Handler) http.Handler
}

// MountRoutes registers the REST API and the websocket endpoint. The
// websocket handler blocks for the connection's lifetime, so it is mounted
// outside the timeout group.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc, opts RouteOptions) {
	r.Get("/ws", ws)

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}

		r.Get("/health", h.Health)

		r.Route("/api", func(r chi.Router) {
			r.Route("/motion-events", func(r chi.Router) {
				create := http.Handler(http.HandlerFunc(h.CreateMotionEvent))
				if opts.IngestLimit != nil {
					create = opts.IngestLimit(create)
				}
				r.Method(http.MethodPost, "/", create)
				r.Get("/", h.ListMotionEvents)
				r.Delete("/", h.DeleteMotionEvents)
				r.Get("/{id}", h.GetMotionEvent)
			})
			r.Get("/sensors", h.ListSensors)
			r.Get("/dashboard/stats", h.DashboardStats)
		})
	})
}
