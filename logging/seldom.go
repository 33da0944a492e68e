package logging

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SeldomWindow is the default suppression window per call site.
const SeldomWindow = 10 * time.Second

// Seldom logs at most one record per call site within a window. It is
// meant for messages emitted from tight loops, such as a repeater that
// keeps failing or a subscription dropping messages.
type Seldom struct {
	logger *slog.Logger
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	limiters map[uintptr]*rate.Limiter
}

// NewSeldom wraps logger. A window of zero uses SeldomWindow.
func NewSeldom(logger *slog.Logger, window time.Duration) *Seldom {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = SeldomWindow
	}
	return &Seldom{
		logger:   logger,
		window:   window,
		now:      time.Now,
		limiters: make(map[uintptr]*rate.Limiter),
	}
}

// Logger returns the wrapped logger.
func (s *Seldom) Logger() *slog.Logger {
	return s.logger
}

// Trace logs at trace level unless the call site logged recently.
func (s *Seldom) Trace(msg string, args ...any) { s.log(LevelTrace, msg, args...) }

// Debug logs at debug level unless the call site logged recently.
func (s *Seldom) Debug(msg string, args ...any) { s.log(slog.LevelDebug, msg, args...) }

// Info logs at info level unless the call site logged recently.
func (s *Seldom) Info(msg string, args ...any) { s.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level unless the call site logged recently.
func (s *Seldom) Warn(msg string, args ...any) { s.log(slog.LevelWarn, msg, args...) }

// Error logs at error level unless the call site logged recently.
func (s *Seldom) Error(msg string, args ...any) { s.log(slog.LevelError, msg, args...) }

// Fatal logs at fatal level unless the call site logged recently.
func (s *Seldom) Fatal(msg string, args ...any) { s.log(LevelFatal, msg, args...) }

func (s *Seldom) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	// Skip runtime.Callers, log and the exported level method
	runtime.Callers(3, pcs[:])
	now := s.now()
	if !s.allow(pcs[0], now) {
		return
	}

	r := slog.NewRecord(now, level, msg, pcs[0])
	r.Add(args...)
	_ = s.logger.Handler().Handle(ctx, r)
}

func (s *Seldom) allow(pc uintptr, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[pc]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.window), 1)
		s.limiters[pc] = l
	}
	return l.AllowN(now, 1)
}
