// Package logging builds the process wide slog logger from the configured
// format and level.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger and sets it as the default. format is
// "json" or "text" (the default, with source locations). Output goes to
// stderr so it never interleaves with the transcript on stdout.
func New(format, level string) *slog.Logger {
	return NewWithWriter(os.Stderr, format, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a LOG_LEVEL value to a slog.Level. Unknown values fall
// back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
