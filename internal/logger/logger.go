// Package logger provides structured logging setup for HomeMonitor.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/HomeMonitor/internal/config"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

const (
	asyncBufferSize = 4096
	asyncWorkers    = 1
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
// When cfg.Async is set, records are handed to a buffered AsyncHandler and
// the returned Closer must be called before exit to flush it.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return build(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}), cfg)
}

// NewText is like New but writes human-readable text to w. The watch
// command uses it when stdout is a terminal.
func NewText(w io.Writer, cfg config.Logging) (*slog.Logger, Closer) {
	return build(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}), cfg)
}

func build(h slog.Handler, cfg config.Logging) (*slog.Logger, Closer) {
	var closer Closer = nopCloser{}
	if cfg.Async {
		// A single worker keeps records in emission order.
		ah := NewAsyncHandler(h, asyncBufferSize, asyncWorkers)
		h, closer = ah, ah
	}
	return slog.New(h).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
