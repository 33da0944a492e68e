package logging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/c360/nodekit/component"
	"github.com/c360/nodekit/transport"
)

// RosoutTopic is the topic log records are mirrored to.
const RosoutTopic = "/rosout"

// Rosout severity values
const (
	RosoutDebug uint8 = 10
	RosoutInfo  uint8 = 20
	RosoutWarn  uint8 = 30
	RosoutError uint8 = 40
	RosoutFatal uint8 = 50
)

// LogRecord is the message published on /rosout.
type LogRecord struct {
	Stamp    component.Stamp `json:"stamp"`
	Level    uint8           `json:"level"`
	Name     string          `json:"name"`
	Msg      string          `json:"msg"`
	File     string          `json:"file"`
	Function string          `json:"function"`
	Line     int             `json:"line"`
}

// RosoutLevel maps a slog level onto the rosout severity scale.
func RosoutLevel(level slog.Level) uint8 {
	switch {
	case level >= LevelFatal:
		return RosoutFatal
	case level >= slog.LevelError:
		return RosoutError
	case level >= slog.LevelWarn:
		return RosoutWarn
	case level >= slog.LevelInfo:
		return RosoutInfo
	default:
		return RosoutDebug
	}
}

// RosoutHandler forwards records to another handler and publishes each one
// as a LogRecord.
type RosoutHandler struct {
	next     slog.Handler
	pub      transport.Publisher
	nodeName string
	clock    *component.Clock
	prefix   string // attributes added through WithAttrs, preformatted
	group    string

	busy      *atomic.Bool
	published *atomic.Int64
	failed    *atomic.Int64
}

// NewRosoutHandler wraps next. Records are published through pub and carry
// nodeName and a stamp taken from clock.
func NewRosoutHandler(next slog.Handler, pub transport.Publisher, nodeName string, clock *component.Clock) *RosoutHandler {
	if clock == nil {
		clock = component.NewClock()
	}
	return &RosoutHandler{
		next:      next,
		pub:       pub,
		nodeName:  nodeName,
		clock:     clock,
		busy:      &atomic.Bool{},
		published: &atomic.Int64{},
		failed:    &atomic.Int64{},
	}
}

// Published returns the number of records published so far.
func (h *RosoutHandler) Published() int64 { return h.published.Load() }

// Failed returns the number of records the publisher rejected.
func (h *RosoutHandler) Failed() int64 { return h.failed.Load() }

// Enabled implements slog.Handler.
func (h *RosoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RosoutHandler) Handle(ctx context.Context, r slog.Record) error {
	// A publisher that logs its own failures must not loop back here
	if h.pub != nil && h.busy.CompareAndSwap(false, true) {
		rec := h.record(r)
		if err := h.pub.Publish(&rec); err != nil {
			h.failed.Add(1)
		} else {
			h.published.Add(1)
		}
		h.busy.Store(false)
	}
	return h.next.Handle(ctx, r)
}

func (h *RosoutHandler) record(r slog.Record) LogRecord {
	var b strings.Builder
	b.WriteString(r.Message)
	if h.prefix != "" {
		b.WriteString(" ")
		b.WriteString(h.prefix)
	}
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		writeAttr(&b, h.group, a)
		return true
	})

	rec := LogRecord{
		Stamp: h.clock.TimeNow(),
		Level: RosoutLevel(r.Level),
		Name:  h.nodeName,
		Msg:   b.String(),
		File:  "unknown",
		Line:  -1,
	}
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		rec.File = frame.File
		rec.Function = frame.Function
		rec.Line = frame.Line
	}
	return rec
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for i, ga := range a.Value.Group() {
			if i > 0 {
				b.WriteString(" ")
			}
			writeAttr(b, key, ga)
		}
		return
	}
	fmt.Fprintf(b, "%s=%v", key, a.Value.Resolve().Any())
}

// WithAttrs implements slog.Handler.
func (h *RosoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)

	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		writeAttr(&b, h.group, a)
	}
	clone.prefix = b.String()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *RosoutHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group = clone.group + "." + name
	}
	return &clone
}
