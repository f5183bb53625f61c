// Package logging builds the logr.Logger used by the binaries.
package logging

import (
	"io"
	"log/slog"

	"github.com/go-logr/logr"
)

// New returns a logger writing to w. Verbosity 0 logs at info; each step above
// that enables one more logr V-level.
func New(w io.Writer, verbosity int, format string) logr.Logger {
	opts := &slog.HandlerOptions{Level: toSlogLevel(verbosity)}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return logr.FromSlogHandler(h)
}

func toSlogLevel(verbosity int) slog.Level {
	if verbosity <= 0 {
		return slog.LevelInfo
	}
	return slog.Level(-verbosity)
}
