package param

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/metric"
)

// Binding ties a remote parameter name to a settable field.
type Binding struct {
	Name  string
	Owner reflect.Type
	Field string

	target  reflect.Value
	pending *Future
}

// Target returns the bound field.
func (b *Binding) Target() reflect.Value {
	return b.target
}

// Synchronizer reconciles parameter-bound fields with a Store.
type Synchronizer struct {
	store   Store
	logger  *slog.Logger
	metrics *metric.Metrics

	mu      sync.RWMutex
	pending []*Binding
	byName  map[string]*Binding
}

// NewSynchronizer creates a synchronizer backed by store. metrics may be nil.
func NewSynchronizer(store Store, logger *slog.Logger, metrics *metric.Metrics) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:   store,
		logger:  logger.With("component", "param"),
		metrics: metrics,
		byName:  make(map[string]*Binding),
	}
}

// Add records a binding and issues its remote fetch without waiting for
// it. A later binding with the same name replaces the earlier one in the
// change lookup.
func (s *Synchronizer) Add(ctx context.Context, name string, owner reflect.Type, field string, target reflect.Value) *Binding {
	b := &Binding{
		Name:    name,
		Owner:   owner,
		Field:   field,
		target:  target,
		pending: s.store.GetParameters(ctx, name),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byName[name]; ok {
		s.logger.Warn("Duplicate parameter binding, last registration wins",
			"parameter", name,
			"previous_owner", prev.Owner.String(),
			"owner", owner.String())
	}
	s.byName[name] = b
	s.pending = append(s.pending, b)
	return b
}

// Lookup returns the binding currently registered under name.
func (s *Synchronizer) Lookup(name string) (*Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byName[name]
	return b, ok
}

// Pending returns the number of bindings not yet resolved.
func (s *Synchronizer) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Resolve awaits every pending fetch in registration order. A missing remote
// value publishes the field's current value; a present one is coerced into
// the field. Per-binding failures are logged. Only ctx cancellation aborts.
func (s *Synchronizer) Resolve(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for i, b := range pending {
		if err := s.resolve(ctx, b); err != nil {
			s.mu.Lock()
			s.pending = append(pending[i:], s.pending...)
			s.mu.Unlock()
			return err
		}
	}
	return nil
}

func (s *Synchronizer) resolve(ctx context.Context, b *Binding) error {
	params, err := b.pending.Await(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Error("Parameter fetch failed, keeping local value",
			"parameter", b.Name, "owner", b.Owner.String(), "error", err)
		s.metrics.ParameterUpdate("fetch_failed")
		return nil
	}

	var remote Value
	for _, p := range params {
		if p.Name == b.Name {
			remote = p.Value
		}
	}

	if !remote.IsSet() {
		s.publishDefault(ctx, b)
		return nil
	}
	s.apply(b, remote)
	return nil
}

func (s *Synchronizer) publishDefault(ctx context.Context, b *Binding) {
	v, err := Encode(b.target)
	if err != nil {
		s.logger.Error("Cannot encode local parameter default",
			"parameter", b.Name, "owner", b.Owner.String(), "field", b.Field, "error", err)
		return
	}
	if err := s.store.SetParameters(ctx, []Parameter{{Name: b.Name, Value: v}}); err != nil {
		s.logger.Error("Failed to publish parameter default",
			"parameter", b.Name, "value", v.Text(), "error", err)
		return
	}
	s.metrics.ParameterUpdate("default")
	s.logger.Debug("Published parameter default", "parameter", b.Name, "value", v.Text())
}

// apply coerces remote into the binding's field and logs a CoercionError on
// failure. It reports whether the field changed.
func (s *Synchronizer) apply(b *Binding, remote Value) bool {
	if err := Coerce(remote, b.target); err != nil {
		cerr := &errors.CoercionError{
			Parameter:  b.Name,
			Owner:      b.Owner,
			Field:      b.Field,
			RemoteKind: remote.Kind.String(),
			Raw:        remote.Text(),
			Err:        err,
		}
		s.logger.Error("Parameter coercion failed, keeping previous value",
			"parameter", b.Name,
			"owner", b.Owner.String(),
			"field", b.Field,
			"remote_kind", cerr.RemoteKind,
			"raw", cerr.Raw,
			"error", cerr)
		s.metrics.ParameterUpdate("coercion_failed")
		return false
	}
	s.metrics.ParameterUpdate("applied")
	return true
}

// OnChange applies a batch of remote changes. Unknown names and coercion
// failures are logged and skipped. A panic while applying rejects the batch.
func (s *Synchronizer) OnChange(params []Parameter) Result {
	result := Result{Successful: true}

	for _, p := range params {
		if err := s.change(p); err != nil {
			result.Successful = false
			if result.Reason == "" {
				result.Reason = err.Error()
			}
		}
	}

	if !result.Successful {
		s.metrics.ParameterUpdate("rejected")
	}
	return result
}

func (s *Synchronizer) change(p Parameter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parameter %q: %w", p.Name, &errors.PanicError{Value: r})
			s.logger.Error("Parameter change panicked", "parameter", p.Name, "panic", r)
		}
	}()

	b, ok := s.Lookup(p.Name)
	if !ok {
		uerr := &errors.UnknownParameterError{Name: p.Name}
		s.logger.Warn("Ignoring change for unknown parameter", "parameter", p.Name, "error", uerr)
		s.metrics.ParameterUpdate("unknown")
		return nil
	}
	if !p.Value.IsSet() {
		s.logger.Debug("Ignoring parameter unset", "parameter", p.Name)
		return nil
	}

	s.apply(b, p.Value)
	return nil
}

// Register installs OnChange as the store's change callback. A store that
// already has a callback is reported as an invalid configuration.
func (s *Synchronizer) Register() error {
	if err := s.store.OnParameterChange(s.OnChange); err != nil {
		if stderrors.Is(err, errors.ErrCallbackExists) {
			return err
		}
		return errors.WrapTransient(err, "Synchronizer", "Register", "register change callback")
	}
	return nil
}
