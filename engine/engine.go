package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/nodekit/component"
	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/logging"
	"github.com/c360/nodekit/metric"
	"github.com/c360/nodekit/param"
	"github.com/c360/nodekit/registry"
	"github.com/c360/nodekit/repeater"
	"github.com/c360/nodekit/transport"
	"github.com/c360/nodekit/watchdog"
)

// DefaultShutdownTimeout bounds the goroutine join in Run.
const DefaultShutdownTimeout = 5 * time.Second

// State is the lifecycle state of a Runtime.
type State int32

// Runtime states
const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stage is a step of the startup sequence. Stages run in declaration order.
type stage int

const (
	stageWiring stage = iota
	stageInject
	stageParameters
	stageCallback
	stageInit
	stageRepeaters
	stageSubscriptions
	stageSpin
)

func (s stage) String() string {
	switch s {
	case stageWiring:
		return "wiring"
	case stageInject:
		return "inject"
	case stageParameters:
		return "parameters"
	case stageCallback:
		return "callback"
	case stageInit:
		return "init"
	case stageRepeaters:
		return "repeaters"
	case stageSubscriptions:
		return "subscriptions"
	case stageSpin:
		return "spin"
	default:
		return "unknown"
	}
}

type initCall struct {
	key    registry.Key
	value  reflect.Value
	method component.MethodBinding
}

// Runtime wires components and drives them through their lifecycle.
type Runtime struct {
	node            transport.Node
	executor        transport.Executor
	store           param.Store
	base            *slog.Logger
	logger          *slog.Logger
	seldom          *logging.Seldom
	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	engine          *engineMetrics
	clock           *component.Clock
	overrides       []param.Parameter
	shutdownTimeout time.Duration
	rosout          bool
	rosoutPub       transport.Publisher // guarded by the registry lock

	instances *registry.Registry
	params    *param.Synchronizer

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	gctx   context.Context

	state atomic.Int32

	mu           sync.Mutex
	reached      stage
	inits        []initCall
	repeaters    []*repeater.Task
	bindings     []*watchdog.Binding
	initsRun     int
	repeatersOn  int
	bindingsOn   int
	stopping     chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a runtime. Parameter overrides are written to the store
// before New returns.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		base:            slog.Default(),
		shutdownTimeout: DefaultShutdownTimeout,
		rosout:          true,
		stopping:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.base.With("component", "engine")
	r.seldom = logging.NewSeldom(r.logger, logging.SeldomWindow)
	if r.clock == nil {
		r.clock = component.NewClock()
	}
	if r.node == nil {
		r.node = transport.NewBus(transport.WithBusLogger(r.base)).NewNode("nodekit", transport.Names{})
	}
	if r.executor == nil {
		r.executor = transport.NewExecutor(r.base)
	}
	if r.store == nil {
		r.store = param.NewMemoryStore()
	}
	if r.metricsRegistry != nil {
		r.metrics = r.metricsRegistry.CoreMetrics()
		em, err := newEngineMetrics(r.metricsRegistry)
		if err != nil {
			return nil, errors.WrapFatal(err, "Runtime", "New", "register engine metrics")
		}
		r.engine = em
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.group, r.gctx = errgroup.WithContext(r.ctx)
	r.params = param.NewSynchronizer(r.store, r.base, r.metrics)
	r.instances = registry.New(r.wire, r.base, r.metrics)

	if dn, ok := r.node.(transport.DropNotifier); ok {
		dn.OnDrop(r.dropped)
	}

	if len(r.overrides) > 0 {
		if err := r.store.SetParameters(r.ctx, r.overrides); err != nil {
			r.cancel()
			return nil, errors.WrapTransient(err, "Runtime", "New", "seed parameter overrides")
		}
		r.logger.Debug("Seeded parameter overrides", "count", len(r.overrides))
	}

	r.setState(StateCreated)
	return r, nil
}

// State returns the current lifecycle state
func (r *Runtime) State() State {
	return State(r.state.Load())
}

func (r *Runtime) setState(s State) {
	r.state.Store(int32(s))
	r.metrics.SetRuntimeState(int(s))
}

// Node returns the transport node components are wired against
func (r *Runtime) Node() transport.Node { return r.node }

// Clock returns the clock injected into clock slots
func (r *Runtime) Clock() *component.Clock { return r.clock }

// Parameters returns the parameter synchronizer
func (r *Runtime) Parameters() *param.Synchronizer { return r.params }

// Instances returns every component instance in creation order.
func (r *Runtime) Instances() []registry.Instance { return r.instances.Instances() }

// Create returns the instance of t under scope, constructing and wiring it
// when absent. After Start the new instance and everything it pulled in are
// armed for every stage already passed.
func (r *Runtime) Create(t reflect.Type, scope string) (any, error) {
	switch r.State() {
	case StateStopping, StateStopped, StateFailed:
		return nil, errors.WrapInvalid(errors.ErrShuttingDown, "Runtime", "Create", "state check")
	}

	inst, err := r.instances.Create(t, scope)
	if err != nil {
		return nil, err
	}
	if err := r.catchUp(r.ctx); err != nil {
		return nil, err
	}
	return inst.Value.Interface(), nil
}

// Create returns the *T registered under scope, creating it when absent.
func Create[T any](r *Runtime, scope string) (*T, error) {
	v, err := r.Create(reflect.TypeOf((*T)(nil)).Elem(), scope)
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// Lookup returns the *T registered under scope without creating it.
func Lookup[T any](r *Runtime, scope string) (*T, bool) {
	return registry.Get[T](r.instances, scope)
}

// wire runs the immediate phase for a new instance. It is called with the
// registry lock held.
func (r *Runtime) wire(inst registry.Instance) error {
	elem := inst.Value.Elem()
	t := inst.Key.Type

	// Fallible slots first so a failure leaves nothing behind.
	for _, f := range inst.Descriptor.Fields {
		field := elem.FieldByIndex(f.Index)
		switch f.Kind {
		case component.FieldPublish:
			pub, err := r.node.CreatePublisher(f.Value, nil)
			if err != nil {
				return errors.NewCreationError(t, f.Field, err)
			}
			field.Set(reflect.ValueOf(pub))
		case component.FieldLog:
			logger, err := r.componentLogger(inst.Key)
			if err != nil {
				return errors.NewCreationError(t, f.Field, err)
			}
			field.Set(reflect.ValueOf(logger))
		}
	}

	for _, f := range inst.Descriptor.Fields {
		field := elem.FieldByIndex(f.Index)
		switch f.Kind {
		case component.FieldParam:
			r.params.Add(r.ctx, f.Value, t, f.Field, field)
		case component.FieldName:
			field.SetString(r.instanceName(inst.Key.Scope))
		case component.FieldClock:
			field.Set(reflect.ValueOf(r.clock))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range inst.Descriptor.Methods {
		switch m.Kind {
		case component.MethodInit:
			r.inits = append(r.inits, initCall{key: inst.Key, value: inst.Value, method: m})
		case component.MethodRepeat:
			r.repeaters = append(r.repeaters, r.newTask(inst, m))
		case component.MethodSubscribe:
			r.bindings = append(r.bindings, r.newBinding(inst, m))
		}
	}
	return nil
}

func (r *Runtime) instanceName(scope string) string {
	if scope == "" {
		return r.node.Name()
	}
	return scope
}

// componentLogger builds the logger for a log slot, mirrored to /rosout
// when enabled.
func (r *Runtime) componentLogger(key registry.Key) (*slog.Logger, error) {
	h := r.base.Handler()
	if r.rosout {
		if r.rosoutPub == nil {
			pub, err := r.node.CreatePublisher(logging.RosoutTopic, reflect.TypeOf(&logging.LogRecord{}))
			if err != nil {
				return nil, err
			}
			r.rosoutPub = pub
		}
		h = logging.NewRosoutHandler(h, r.rosoutPub, r.node.Name(), r.clock)
	}
	return slog.New(h).With("component", key.String()), nil
}

func (r *Runtime) newTask(inst registry.Instance, m component.MethodBinding) *repeater.Task {
	value := inst.Value
	policy := repeater.Policy{Delay: m.Delay, Interval: m.Interval, MaxCount: m.Count}
	return repeater.New(inst.Key.String()+"."+m.Method, policy,
		func() (bool, error) { return m.Invoke(value) },
		repeater.WithLogger(r.base),
		repeater.WithMetrics(r.metrics))
}

func (r *Runtime) newBinding(inst registry.Instance, m component.MethodBinding) *watchdog.Binding {
	value := inst.Value
	return watchdog.New(m.Topic, m.ArgType,
		func(msg any) error {
			arg, err := m.Arg(msg)
			if err != nil {
				return &errors.InvocationError{Owner: value.Type(), Method: m.Method, Err: err}
			}
			_, err = m.Invoke(value, arg)
			return err
		},
		watchdog.WithTimeout(m.Timeout),
		watchdog.WithQueueLength(m.QueueLength),
		watchdog.WithLogger(r.base),
		watchdog.WithMetrics(r.metrics))
}

func (r *Runtime) dropped(topic string) {
	r.metrics.MessageDropped(topic)
	r.seldom.Warn("Dropped inbound message", "topic", topic)
}

// Start runs the startup sequence once. On error the runtime is left in
// StateFailed and Shutdown releases whatever was started.
func (r *Runtime) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Runtime", "Start", "state check")
	}
	r.metrics.SetRuntimeState(int(StateStarting))
	r.logger.Info("Starting runtime", "node", r.node.Name(), "instances", r.instances.Len())

	steps := []struct {
		stage stage
		run   func(context.Context) error
	}{
		{stageInject, func(context.Context) error { return r.instances.InjectAll() }},
		{stageParameters, r.params.Resolve},
		{stageCallback, func(context.Context) error { return r.params.Register() }},
		{stageInit, func(context.Context) error { r.runInits(); return nil }},
		{stageRepeaters, func(context.Context) error { return r.startRepeaters() }},
		{stageSubscriptions, func(context.Context) error { return r.startSubscriptions() }},
		{stageSpin, func(context.Context) error { r.spin(); return nil }},
	}

	for _, step := range steps {
		r.advance(step.stage)
		start := time.Now()
		err := step.run(ctx)
		r.engine.recordStage(step.stage, start, err)
		if err != nil {
			r.setState(StateFailed)
			r.logger.Error("Startup aborted", "stage", step.stage.String(), "error", err)
			return err
		}
		logging.Trace(r.logger, "Startup stage complete", "stage", step.stage.String())
	}

	r.setState(StateRunning)
	r.logger.Info("Runtime running",
		"instances", r.instances.Len(),
		"repeaters", len(r.repeaters),
		"subscriptions", len(r.bindings))
	return nil
}

func (r *Runtime) advance(s stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reached = s
}

func (r *Runtime) reachedStage() stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reached
}

// catchUp arms pending work for every stage Start has already entered.
func (r *Runtime) catchUp(ctx context.Context) error {
	reached := r.reachedStage()
	if reached >= stageParameters {
		if err := r.params.Resolve(ctx); err != nil {
			return err
		}
	}
	if reached >= stageInit {
		r.runInits()
	}
	if reached >= stageRepeaters {
		if err := r.startRepeaters(); err != nil {
			return err
		}
	}
	if reached >= stageSubscriptions {
		return r.startSubscriptions()
	}
	return nil
}

// runInits calls every init method not yet called. Failures are logged and
// do not stop the others.
func (r *Runtime) runInits() {
	for {
		r.mu.Lock()
		if r.initsRun >= len(r.inits) {
			r.mu.Unlock()
			return
		}
		call := r.inits[r.initsRun]
		r.initsRun++
		r.mu.Unlock()

		if _, err := call.method.Invoke(call.value); err != nil {
			r.metrics.InvocationError("init")
			r.logger.Error("Init method failed",
				"instance", call.key.String(),
				"method", call.method.Method,
				"error", err)
		}
	}
}

func (r *Runtime) startRepeaters() error {
	for {
		r.mu.Lock()
		if r.repeatersOn >= len(r.repeaters) {
			r.mu.Unlock()
			return nil
		}
		task := r.repeaters[r.repeatersOn]
		r.repeatersOn++
		r.mu.Unlock()

		if err := task.Start(); err != nil {
			return errors.Wrap(err, "Runtime", "Start", "start repeater "+task.Name())
		}
		r.group.Go(func() error {
			<-task.Done()
			return nil
		})
	}
}

func (r *Runtime) startSubscriptions() error {
	for {
		r.mu.Lock()
		if r.bindingsOn >= len(r.bindings) {
			r.mu.Unlock()
			return nil
		}
		b := r.bindings[r.bindingsOn]
		r.bindingsOn++
		r.mu.Unlock()

		if err := b.Start(r.node); err != nil {
			return err
		}
		r.group.Go(func() error {
			<-b.Done()
			return nil
		})
	}
}

func (r *Runtime) spin() {
	r.executor.AddNode(r.node)
	r.group.Go(func() error {
		r.executor.Spin(r.gctx)
		return nil
	})
}

// Run starts the runtime and blocks until ctx ends or Shutdown is called,
// then shuts down within the configured timeout.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		if serr := r.shutdownWithTimeout(); serr != nil {
			r.logger.Warn("Cleanup after failed start", "error", serr)
		}
		return err
	}

	select {
	case <-ctx.Done():
	case <-r.stopping:
	}
	return r.shutdownWithTimeout()
}

func (r *Runtime) shutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()
	return r.Shutdown(ctx)
}

// Shutdown stops the executor, then repeaters and subscriptions, closes the
// node and joins every goroutine the runtime started. A user method that
// never returns makes the join give up when ctx ends. Later calls return
// the first result.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		close(r.stopping)
		start := time.Now()
		r.setState(StateStopping)
		r.logger.Info("Stopping runtime")

		r.executor.Shutdown()
		r.cancel()

		r.mu.Lock()
		tasks := append([]*repeater.Task(nil), r.repeaters...)
		bindings := append([]*watchdog.Binding(nil), r.bindings...)
		r.mu.Unlock()

		var errs []error
		for _, task := range tasks {
			task.Shutdown()
		}
		for _, b := range bindings {
			if err := b.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := r.node.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "Runtime", "Shutdown", "close node"))
		}

		done := make(chan error, 1)
		go func() { done <- r.group.Wait() }()

		clean := true
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			clean = false
			r.logger.Warn("Shutdown timed out waiting for running methods")
			errs = append(errs, errors.WrapTransient(ctx.Err(), "Runtime", "Shutdown", "join goroutines"))
		}

		r.engine.recordShutdown(start, clean)
		r.setState(StateStopped)
		r.shutdownErr = stderrors.Join(errs...)
		r.logger.Info("Runtime stopped", "duration", time.Since(start))
		r.logTotals()
	})
	return r.shutdownErr
}

// logTotals logs the lifetime counter totals at debug level.
func (r *Runtime) logTotals() {
	if r.metricsRegistry == nil || !r.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	totals, err := metric.CounterTotals(r.metricsRegistry, metric.Prefix)
	if err != nil {
		r.logger.Debug("Counter totals unavailable", "error", err)
		return
	}
	r.logger.Debug("Runtime totals", metric.SummaryArgs(totals, metric.Prefix)...)
}
