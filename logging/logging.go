// Package logging configures structured logging for the openjudge processes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup creates a configured slog.Logger tagged with the service name.
// format is "json" or "text" (defaults to "json"); level is "debug", "info",
// "warn", or "error" (defaults to "info"). If w is nil, output goes to
// os.Stderr.
func Setup(service, format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
