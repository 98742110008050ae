package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON logger writing to stdout. Level defaults to info;
// HEIMDALL_LOG_LEVEL=debug turns on debug output.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("HEIMDALL_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
