package param

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/nodekit/errors"
)

// MemoryStore is an in-process Store. Update simulates a remote-initiated
// change and drives the registered callback.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]Value
	callback ChangeCallback
	sets     [][]Parameter
}

// NewMemoryStore creates a store seeded with initial values.
func NewMemoryStore(initial ...Parameter) *MemoryStore {
	s := &MemoryStore{values: make(map[string]Value)}
	for _, p := range initial {
		s.values[p.Name] = p.Value
	}
	return s
}

// GetParameters resolves immediately from the local map.
func (s *MemoryStore) GetParameters(_ context.Context, names ...string) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Parameter, len(names))
	for i, name := range names {
		out[i] = Parameter{Name: name, Value: s.values[name]}
	}
	return Resolved(out, nil)
}

// SetParameters stores the values without notifying the callback.
func (s *MemoryStore) SetParameters(ctx context.Context, params []Parameter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range params {
		s.values[p.Name] = p.Value
	}
	s.sets = append(s.sets, append([]Parameter(nil), params...))
	return nil
}

// OnParameterChange registers the change callback.
func (s *MemoryStore) OnParameterChange(cb ChangeCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callback != nil {
		return errors.WrapInvalid(errors.ErrCallbackExists, "MemoryStore", "OnParameterChange",
			"register change callback")
	}
	s.callback = cb
	return nil
}

// Update applies params as if changed remotely and returns the callback's
// acknowledgment.
func (s *MemoryStore) Update(params ...Parameter) Result {
	s.mu.Lock()
	for _, p := range params {
		s.values[p.Name] = p.Value
	}
	cb := s.callback
	s.mu.Unlock()

	if cb == nil {
		return Result{Reason: "no change callback registered"}
	}
	return cb(params)
}

// Value returns the stored value for name.
func (s *MemoryStore) Value(name string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[name]
	return v, ok
}

// SetCalls returns a copy of every SetParameters batch in call order.
func (s *MemoryStore) SetCalls() [][]Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]Parameter, len(s.sets))
	copy(out, s.sets)
	return out
}

// String implements fmt.Stringer
func (s *MemoryStore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("MemoryStore(%d values)", len(s.values))
}
