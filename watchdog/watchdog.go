// Package watchdog binds subscribe handlers to topics and fires them with an
// absent message when nothing arrives within a timeout.
package watchdog

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/logging"
	"github.com/c360/nodekit/metric"
	"github.com/c360/nodekit/transport"
)

// Handler receives an inbound message, or nil when the timeout fired.
type Handler func(msg any) error

// Option configures a Binding
type Option func(*Binding)

// WithTimeout enables the watchdog. A non-positive d leaves the binding
// passive.
func WithTimeout(d time.Duration) Option {
	return func(b *Binding) { b.timeout = d }
}

// WithQueueLength bounds the pending deliveries of the subscription.
func WithQueueLength(n int) Option {
	return func(b *Binding) {
		if n > 0 {
			b.queueLength = n
		}
	}
}

// WithLogger sets the binding logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records messages and timeouts
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Binding) { b.metrics = m }
}

// WithTimeSource replaces time.Now, mainly for tests.
func WithTimeSource(now func() time.Time) Option {
	return func(b *Binding) {
		if now != nil {
			b.now = now
		}
	}
}

// Binding couples one topic to one handler.
type Binding struct {
	topic       string
	msgType     reflect.Type
	handler     Handler
	timeout     time.Duration
	queueLength int

	logger  *slog.Logger
	seldom  *logging.Seldom
	metrics *metric.Metrics
	now     func() time.Time

	last    atomic.Int64 // unix nanoseconds of the last message or firing
	calls   sync.Mutex   // serializes handler invocations
	started atomic.Bool
	sub     transport.Subscription

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// New creates an unstarted binding for topic.
func New(topic string, msgType reflect.Type, handler Handler, opts ...Option) *Binding {
	b := &Binding{
		topic:       topic,
		msgType:     msgType,
		handler:     handler,
		queueLength: transport.DefaultQueueLength,
		logger:      slog.Default(),
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "watchdog", "topic", topic)
	b.seldom = logging.NewSeldom(b.logger, logging.SeldomWindow)
	return b
}

// Topic returns the requested topic
func (b *Binding) Topic() string { return b.topic }

// Timeout returns the watchdog timeout, zero when passive
func (b *Binding) Timeout() time.Duration { return b.timeout }

// Subscription returns the live subscription once started.
func (b *Binding) Subscription() transport.Subscription { return b.sub }

// Done is closed when the watcher goroutine has exited, or at Stop for
// passive bindings.
func (b *Binding) Done() <-chan struct{} { return b.done }

// Start subscribes on node and launches the watcher when a timeout is set.
func (b *Binding) Start(node transport.Node) error {
	if b.handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidHandler, "Binding", "Start", b.topic)
	}
	if !b.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Binding", "Start", b.topic)
	}

	b.touch(b.now())
	sub, err := node.CreateSubscription(b.topic, b.msgType, b.queueLength, b.onMessage)
	if err != nil {
		b.finish()
		return errors.Wrap(err, "Binding", "Start", fmt.Sprintf("subscribe %s", b.topic))
	}
	b.sub = sub

	if b.timeout > 0 {
		go b.watch()
	}
	b.logger.Debug("Subscription started", "resolved", sub.Topic(), "timeout", b.timeout)
	return nil
}

// Stop closes the subscription and stops the watcher. It does not wait;
// use Done to join.
func (b *Binding) Stop() error {
	b.stopOnce.Do(func() { close(b.stop) })
	if b.timeout <= 0 || b.started.CompareAndSwap(false, true) {
		b.finish()
	}
	if b.sub != nil {
		return b.sub.Close()
	}
	return nil
}

func (b *Binding) onMessage(msg any) {
	select {
	case <-b.stop:
		return
	default:
	}
	b.touch(b.now())
	b.metrics.MessageReceived(b.topic)
	b.dispatch(msg)
}

func (b *Binding) touch(t time.Time) {
	b.last.Store(t.UnixNano())
}

func (b *Binding) watch() {
	defer b.finish()

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		now := b.now()
		dt := now.Sub(time.Unix(0, b.last.Load()))
		if dt < 0 {
			b.seldom.Error("Clock moved backwards", "skew", -dt)
			dt = 0
		}
		if dt >= b.timeout {
			b.touch(now)
			b.metrics.WatchdogTimeout(b.topic)
			b.dispatch(nil)
			continue
		}

		timer := time.NewTimer(b.timeout - dt)
		select {
		case <-timer.C:
		case <-b.stop:
			timer.Stop()
			return
		}
	}
}

func (b *Binding) dispatch(msg any) {
	b.calls.Lock()
	defer b.calls.Unlock()

	defer func() {
		if r := recover(); r != nil {
			b.failed(&errors.PanicError{Value: r})
		}
	}()
	if err := b.handler(msg); err != nil {
		b.failed(err)
	}
}

func (b *Binding) failed(err error) {
	b.metrics.InvocationError("subscribe")
	args := []any{"error", err}
	var ie *errors.InvocationError
	if stderrors.As(err, &ie) {
		args = append(args, "method", ie.Method)
	}
	b.logger.Debug("Subscription handler failed", args...)
	b.seldom.Error("Subscription handler failed", args...)
}

func (b *Binding) finish() {
	b.doneOnce.Do(func() { close(b.done) })
}
