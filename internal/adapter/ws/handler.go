package ws

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Strob0t/HomeMonitor/internal/logger"
)

// HandleWS upgrades the request and keeps the subscriber registered until
// its socket closes. The handler blocks for the connection's lifetime, so it
// must not sit behind a request timeout.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	id := uuid.NewString()
	s := newSocket(c)
	h.Add(id, s)

	ctx := logger.WithConnID(r.Context(), id)
	log := slog.With(logger.Attrs(ctx)...)
	log.Info("websocket connected", "remote", r.RemoteAddr, "clients", h.Count())

	defer func() {
		h.RemoveIf(id, s)
		_ = s.Close()
		log.Info("websocket disconnected", "clients", h.Count())
	}()

	if err := s.drain(ctx); err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, r.Context().Err()) {
		log.Debug("websocket read ended", "error", err)
	}
}
