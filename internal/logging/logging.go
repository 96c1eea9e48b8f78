package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide JSON logger. Every record carries
// the service and env attributes so the auth stream can be split out
// of the backend's aggregate logs.
func NewLogger(level, serviceName, env string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	attrs := []any{slog.String("service", serviceName)}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return slog.New(h).With(attrs...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
