// Package logging provides structured logging using slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Config holds logging configuration.
type Config struct {
	Format string // "json" | "text", for stderr
	Level  string // "debug" | "info" | "warn" | "error"
	File   string // optional JSON log file, appended to
}

// Setup builds the process logger and installs it as slog's default.
//
// Records go to stderr in Format. When File is set they are also appended to
// that file as JSON. The returned cleanup closes the file.
func Setup(cfg Config) (*slog.Logger, func() error) {
	if cfg.File == "" {
		logger := New(os.Stderr, nil, cfg)
		slog.SetDefault(logger)
		return logger, func() error { return nil }
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := New(os.Stderr, nil, cfg)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", cfg.File)
		slog.SetDefault(logger)
		return logger, func() error { return nil }
	}

	logger := New(os.Stderr, file, cfg)
	slog.SetDefault(logger)
	return logger, file.Close
}

// New creates a logger writing to stderr in cfg.Format and, when file is
// non-nil, fanned out to file as JSON. cfg.File is ignored.
func New(stderr, file io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var console slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		console = slog.NewJSONHandler(stderr, opts)
	default:
		console = slog.NewTextHandler(stderr, opts)
	}
	if file == nil {
		return slog.New(console)
	}
	return slog.New(slogmulti.Fanout(console, slog.NewJSONHandler(file, opts)))
}

// parseLevel converts a string level to slog.Level.
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

// Component returns a logger with a component name.
func Component(name string) *slog.Logger {
	return slog.With("component", name)
}
