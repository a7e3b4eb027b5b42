package app

import (
	"io"
	"log/slog"
)

// logLevels maps the accepted --log-level values to slog levels. Parse
// rejects anything outside this set before a Config reaches the app.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the app's own logger instance, leaving the process
// global untouched. It writes to errW; outW stays reserved for the
// violation report.
func newLogger(config *Config, errW io.Writer) *slog.Logger {
	level, ok := logLevels[config.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if config.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(errW, opts))
	}
	return slog.New(slog.NewTextHandler(errW, opts))
}
