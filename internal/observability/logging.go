package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger on stderr with a component field attached.
func NewLogger(component string) *slog.Logger {
	return NewLoggerTo(os.Stderr, slog.LevelInfo, component)
}

// NewLoggerTo returns a JSON logger writing to w at the given level.
func NewLoggerTo(w io.Writer, level slog.Level, component string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func WithInput(logger *slog.Logger, input string) *slog.Logger {
	if logger == nil || input == "" {
		return logger
	}
	return logger.With("input", input)
}

func WithCommit(logger *slog.Logger, commit string) *slog.Logger {
	if logger == nil || commit == "" {
		return logger
	}
	return logger.With("commit", ShortCommit(commit))
}

// ShortCommit abbreviates a commit hash to 12 characters for log output.
func ShortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
