package param

import (
	"context"
	"sync"
)

// Result acknowledges a batch of remote changes.
type Result struct {
	Successful bool
	Reason     string
}

// ChangeCallback receives remote-initiated parameter changes.
type ChangeCallback func(params []Parameter) Result

// Store is the remote authority for parameter values.
type Store interface {
	// GetParameters issues an asynchronous fetch. The returned parameters
	// follow the order of names; missing ones carry KindNotSet.
	GetParameters(ctx context.Context, names ...string) *Future

	SetParameters(ctx context.Context, params []Parameter) error

	// OnParameterChange registers the process-wide change callback. Only
	// one registration is accepted.
	OnParameterChange(cb ChangeCallback) error
}

// Future is the pending result of a GetParameters call.
type Future struct {
	done   chan struct{}
	once   sync.Once
	params []Parameter
	err    error
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved(params []Parameter, err error) *Future {
	f := NewFuture()
	f.Complete(params, err)
	return f
}

// Complete resolves the future. Later calls are ignored.
func (f *Future) Complete(params []Parameter, err error) {
	f.once.Do(func() {
		f.params = params
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx ends.
func (f *Future) Await(ctx context.Context) ([]Parameter, error) {
	select {
	case <-f.done:
		return f.params, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
