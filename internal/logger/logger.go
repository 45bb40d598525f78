// Package logger provides the structured logger shared by every component,
// built on log/slog the way the teacher repository does it.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// ParseLevel converts a string log level to slog.Level. Unknown levels
// default to Info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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

// New builds a logger for the given level and output format ("json" or
// "text").
func New(level slog.Level, jsonFormat bool, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *slog.Logger) { defaultLogger = l }

// Default returns the package-level logger.
func Default() *slog.Logger { return defaultLogger }

type sourceKey struct{}

// WithSource returns a context carrying an event-bus source path, so log
// lines emitted deeper in the call stack can tag themselves without
// threading the path through every signature.
func WithSource(ctx context.Context, path []string) context.Context {
	return context.WithValue(ctx, sourceKey{}, path)
}

// SourceFrom extracts the source path attached by WithSource, if any.
func SourceFrom(ctx context.Context) []string {
	v, _ := ctx.Value(sourceKey{}).([]string)
	return v
}

// FromContext returns the default logger annotated with the source path
// carried in ctx, if any.
func FromContext(ctx context.Context) *slog.Logger {
	if path := SourceFrom(ctx); len(path) > 0 {
		return defaultLogger.With("source", strings.Join(path, "."))
	}
	return defaultLogger
}
