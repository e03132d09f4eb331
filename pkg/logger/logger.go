// Package logger provides the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the process-wide *slog.Logger and HTTP access logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.Provide(NewHTTPLogger),
)

// NewLogger builds the process slog.Logger from LOG_LEVEL and GO_ENV.
// LOG_LEVEL defaults to "info"; unrecognized values also default to "info".
// GO_ENV=production selects a JSON handler; anything else selects text.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Scope tags a logger with the component emitting the line, e.g.
// log.With(logger.Scope("tasks.service")).
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error attaches an error to a log line under the conventional "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
