// Package logging builds the structured loggers handed to every component.
//
// Debug output (absorbed fallbacks, probe failures, proxy parse errors) is
// only emitted when debug is enabled:
//
//	logger := logging.New(cfg.Debug, cfg.LogFormat, os.Stderr)
//	logger.Debug("probe failed", "addr", addr, "err", err)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing text or JSON records to w.
func New(debug bool, format string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if w == nil {
		w = os.Stderr
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
