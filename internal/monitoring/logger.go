// Package monitoring configures structured logging and run metrics.
package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logf is the package-level printf-style diagnostic logger. It defaults to
// an Info record on slog.Default but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = defaultLogf

func defaultLogf(format string, v ...interface{}) {
	slog.Default().Info(fmt.Sprintf(format, v...))
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogConfig selects the level, format and destination of log output.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	// File, when set, receives a copy of every record in addition to Stderr.
	File string
}

// ParseLevel maps a level name to slog.Level. Unknown names are Info.
func ParseLevel(s string) slog.Level {
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

// NewLogger builds a logger for cfg writing to w (os.Stderr when nil). The
// returned closer releases the log file, if any.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, io.Closer, error) {
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(&runHandler{Handler: h}), closer, nil
}

// Setup builds the logger, installs it as slog's default and points Logf
// at it.
func Setup(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	logger, closer, err := NewLogger(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	SetLogger(defaultLogf)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID tags ctx so records logged with it carry run_id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID returns the run id stored in ctx, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// runHandler injects run_id from the context into each record.
type runHandler struct {
	slog.Handler
}

func (h *runHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RunID(ctx); id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *runHandler) WithGroup(name string) slog.Handler {
	return &runHandler{Handler: h.Handler.WithGroup(name)}
}
