package obs

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the shared structured JSON logger, tagged with the
// service name.
func NewLogger(service, level string) *slog.Logger {
	return NewLoggerWithWriter(service, level, os.Stdout)
}

// NewLoggerWithWriter is NewLogger with an explicit sink, for tests.
func NewLoggerWithWriter(service, level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With(slog.String("service", service))
}
