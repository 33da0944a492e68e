// Package repeater runs periodic component methods, each on its own
// goroutine.
package repeater

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/logging"
	"github.com/c360/nodekit/metric"
)

// State is the lifecycle state of a Task.
type State int32

// Task states. The Stopped states are terminal.
const (
	Created State = iota
	Running
	StoppedByCount
	StoppedByResult
	StoppedByShutdown
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case StoppedByCount:
		return "stopped_by_count"
	case StoppedByResult:
		return "stopped_by_result"
	case StoppedByShutdown:
		return "stopped_by_shutdown"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further invocations can happen.
func (s State) Terminal() bool {
	return s >= StoppedByCount
}

func (s State) reason() string {
	switch s {
	case StoppedByCount:
		return "count"
	case StoppedByResult:
		return "result"
	default:
		return "shutdown"
	}
}

// Policy selects the pause between invocations. Delay pauses a fixed time
// after each call. Interval keeps calls on a schedule anchored at start. With
// neither set the task runs back to back. MaxCount of 0 means unbounded.
type Policy struct {
	Delay    time.Duration
	Interval time.Duration
	MaxCount int
}

// Validate checks the policy
func (p Policy) Validate() error {
	if p.Delay < 0 || p.Interval < 0 || p.MaxCount < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative policy value"), "Policy", "Validate", "policy check")
	}
	if p.Delay > 0 && p.Interval > 0 {
		return errors.WrapInvalid(errors.ErrMarkerConflict, "Policy", "Validate", "delay and interval are exclusive")
	}
	return nil
}

// Func is one iteration. Returning false stops the task. An error is logged
// and the task continues.
type Func func() (bool, error)

// Option configures a Task
type Option func(*Task)

// WithLogger sets the task logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records iterations and stops
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Task) {
		t.metrics = m
	}
}

// Task drives one periodic method.
type Task struct {
	name    string
	policy  Policy
	fn      Func
	logger  *slog.Logger
	seldom  *logging.Seldom
	metrics *metric.Metrics

	state   atomic.Int32
	count   atomic.Int64
	started atomic.Bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a task in the Created state.
func New(name string, policy Policy, fn Func, opts ...Option) *Task {
	t := &Task{
		name:   name,
		policy: policy,
		fn:     fn,
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "repeater", "task", name)
	t.seldom = logging.NewSeldom(t.logger, logging.SeldomWindow)
	return t
}

// Name returns the task name
func (t *Task) Name() string { return t.name }

// Policy returns the scheduling policy
func (t *Task) Policy() Policy { return t.policy }

// State returns the current state
func (t *Task) State() State { return State(t.state.Load()) }

// Count returns the number of invocations so far
func (t *Task) Count() int64 { return t.count.Load() }

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Start launches the task goroutine. A task starts at most once.
func (t *Task) Start() error {
	if err := t.policy.Validate(); err != nil {
		return err
	}
	if !t.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Task", "Start", t.name)
	}
	t.state.Store(int32(Running))
	go t.run()
	return nil
}

// Wakeup interrupts the current pause so the next iteration runs now.
func (t *Task) Wakeup() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops the task without a final invocation. It does not wait;
// use Done to join.
func (t *Task) Shutdown() {
	t.stopOnce.Do(func() { close(t.stop) })
	if t.started.CompareAndSwap(false, true) {
		t.finish(StoppedByShutdown)
	}
}

func (t *Task) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *Task) run() {
	anchor := time.Now()
	for {
		if t.stopped() {
			t.finish(StoppedByShutdown)
			return
		}
		if t.policy.MaxCount > 0 && t.count.Load() >= int64(t.policy.MaxCount) {
			t.finish(StoppedByCount)
			return
		}

		t.count.Add(1)
		if !t.invoke() {
			t.finish(StoppedByResult)
			return
		}

		switch {
		case t.policy.Delay > 0:
			t.sleep(t.policy.Delay)
		case t.policy.Interval > 0:
			pause := t.policy.Interval - time.Since(anchor)
			anchor = anchor.Add(t.policy.Interval)
			if pause > 0 {
				t.sleep(pause)
			}
		}
	}
}

func (t *Task) invoke() (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			t.failed(&errors.PanicError{Value: r})
			cont = true
		}
	}()

	t.metrics.RepeaterIteration(t.name)
	cont, err := t.fn()
	if err != nil {
		t.failed(err)
	}
	return cont
}

func (t *Task) failed(err error) {
	t.metrics.InvocationError("repeat")
	args := []any{"count", t.count.Load(), "error", err}
	var ie *errors.InvocationError
	if stderrors.As(err, &ie) {
		args = append(args, "method", ie.Method)
	}
	t.logger.Debug("Repeater iteration failed", args...)
	t.seldom.Error("Repeater iteration failed", args...)
}

// sleep waits for d, a wakeup or shutdown, whichever comes first.
func (t *Task) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.wake:
	case <-t.stop:
	}
}

func (t *Task) finish(s State) {
	t.state.Store(int32(s))
	t.metrics.RepeaterStopped(t.name, s.reason())
	t.logger.Debug("Repeater stopped", "state", s.String(), "count", t.count.Load())
	close(t.done)
}
