package log

import (
	"io"
	"log/slog"
)

// NewConsoleHandler builds a text or JSON slog handler over w, depending
// on cfg.Format.
func NewConsoleHandler(w io.Writer, cfg *Config, level slog.Level) slog.Handler {
	return newFormatHandler(cfg.Format, w, level)
}

func newFormatHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
