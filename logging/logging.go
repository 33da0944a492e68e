// Package logging sets up slog for NodeKit processes and adds the pieces
// the runtime needs on top of it: trace and fatal levels, a call-site rate
// limited "seldom" logger and a handler that mirrors records to /rosout.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Extra levels beyond the four slog defines
const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// LevelName returns the display name of a level, including trace and fatal.
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level >= LevelFatal:
		return "FATAL"
	default:
		return level.String()
	}
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(lvl))
		}
	}
	return a
}

// NewHandler builds a JSON or text handler writing to w. Debug and trace
// levels include the source location.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl <= slog.LevelDebug,
		ReplaceAttr: replaceLevel,
	}

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// Trace logs at trace level, attributing the record to the caller.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logAt(context.Background(), logger, LevelTrace, msg, 3, args...)
}

// Fatal logs at fatal level. It does not exit the process.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logAt(context.Background(), logger, LevelFatal, msg, 3, args...)
}

func logAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, skip int, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(ctx, r)
}
