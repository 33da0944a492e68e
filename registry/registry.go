// Package registry holds component instances keyed by type and scope and
// resolves their inject slots.
package registry

import (
	stderrors "errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/c360/nodekit/component"
	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/metric"
)

// Key identifies one instance.
type Key struct {
	Type  reflect.Type // struct type
	Scope string
}

// String returns "type@scope", or the type alone for the root scope.
func (k Key) String() string {
	if k.Scope == "" {
		return k.Type.String()
	}
	return k.Type.String() + "@" + k.Scope
}

// ResolveScope computes the scope of an inject target. A requested name
// starting with "/" is used verbatim; otherwise it is appended to owner,
// with a separator only when both parts are non-empty.
func ResolveScope(owner, requested string) string {
	if strings.HasPrefix(requested, "/") {
		return requested
	}
	if owner == "" {
		return requested
	}
	if requested == "" {
		return owner
	}
	return owner + "/" + requested
}

// Instance is a registered component.
type Instance struct {
	Key        Key
	Value      reflect.Value // *T
	Descriptor *component.Descriptor
}

// Wirer runs the immediate wiring phase of a new instance: publish slots,
// parameter bindings, clock and name slots, and method markers. It is called
// with the registry lock held and must not call back into the Registry.
type Wirer func(inst Instance) error

// Registry owns every component instance. It guarantees at most one
// instance per Key.
type Registry struct {
	mu        sync.Mutex
	instances map[Key]Instance
	order     []Key
	queue     []Instance
	injected  bool

	wire    Wirer
	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates an empty registry. wire may be nil.
func New(wire Wirer, logger *slog.Logger, metrics *metric.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		instances: make(map[Key]Instance),
		wire:      wire,
		logger:    logger.With("component", "registry"),
		metrics:   metrics,
	}
}

// Create returns the instance for (t, scope), constructing and wiring it
// when absent. t may be a struct type or a pointer to one. Once InjectAll has
// run, a new instance's inject slots are resolved before Create returns.
func (r *Registry) Create(t reflect.Type, scope string) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(t, scope)
}

func (r *Registry) create(t reflect.Type, scope string) (Instance, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	desc, err := component.Scan(t)
	if err != nil {
		return Instance{}, err
	}

	key := Key{Type: desc.Type, Scope: scope}
	if inst, ok := r.instances[key]; ok {
		return inst, nil
	}

	value, err := construct(desc.Type)
	if err != nil {
		return Instance{}, err
	}

	inst := Instance{Key: key, Value: value, Descriptor: desc}

	// Stored before wiring so that injection cycles resolve to this instance.
	r.instances[key] = inst
	r.order = append(r.order, key)

	if r.wire != nil {
		if err := r.wire(inst); err != nil {
			r.forget(key)
			var ce *errors.CreationError
			if stderrors.As(err, &ce) {
				return Instance{}, err
			}
			return Instance{}, errors.NewCreationError(desc.Type, "", err)
		}
	}

	r.metrics.InstanceCreated(desc.Type.String())
	r.logger.Debug("Created component", "key", key.String())

	if !r.injected {
		r.queue = append(r.queue, inst)
		return inst, nil
	}
	if err := r.inject(inst); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

func (r *Registry) forget(key Key) {
	delete(r.instances, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// construct allocates a zero T and runs its Construct hook, if any.
func construct(t reflect.Type) (v reflect.Value, err error) {
	v = reflect.New(t)
	c, ok := v.Interface().(component.Constructor)
	if !ok {
		return v, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewCreationError(t, "Construct", &errors.PanicError{Value: r})
		}
	}()
	if cerr := c.Construct(); cerr != nil {
		return v, errors.NewCreationError(t, "Construct", cerr)
	}
	return v, nil
}

// inject resolves every inject slot of inst, creating targets as needed.
func (r *Registry) inject(inst Instance) error {
	elem := inst.Value.Elem()
	for _, f := range inst.Descriptor.FieldsOf(component.FieldInject) {
		scope := ResolveScope(inst.Key.Scope, f.Value)
		dep, err := r.create(f.Type.Elem(), scope)
		if err != nil {
			var ce *errors.CreationError
			if stderrors.As(err, &ce) {
				return err
			}
			return errors.NewCreationError(inst.Key.Type, f.Field, err)
		}
		elem.FieldByIndex(f.Index).Set(dep.Value)
	}
	return nil
}

// InjectAll runs the deferred injection pass over every queued instance,
// including ones created while the pass runs, then closes the pass.
// Subsequent calls do nothing.
func (r *Registry) InjectAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.injected {
		return nil
	}
	for len(r.queue) > 0 {
		inst := r.queue[0]
		r.queue = r.queue[1:]
		if err := r.inject(inst); err != nil {
			return err
		}
	}
	r.queue = nil
	r.injected = true
	r.logger.Debug("Injection pass complete", "instances", len(r.order))
	return nil
}

// Injected reports whether the deferred pass has closed.
func (r *Registry) Injected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.injected
}

// Lookup returns the instance for (t, scope) without creating it.
func (r *Registry) Lookup(t reflect.Type, scope string) (Instance, bool) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[Key{Type: t, Scope: scope}]
	return inst, ok
}

// Instances returns every instance in creation order.
func (r *Registry) Instances() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Instance, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.instances[k])
	}
	return out
}

// Len returns the number of instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Get returns the typed instance for scope.
func Get[T any](r *Registry, scope string) (*T, bool) {
	inst, ok := r.Lookup(reflect.TypeOf((*T)(nil)).Elem(), scope)
	if !ok {
		return nil, false
	}
	v, ok := inst.Value.Interface().(*T)
	return v, ok
}
