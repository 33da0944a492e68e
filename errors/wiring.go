package errors

import (
	"fmt"
	"reflect"
)

// CreationError reports that a component instance could not be constructed
// or wired. It aborts the startup sequence.
type CreationError struct {
	Type   reflect.Type
	Member string // field or method name, empty when the failure is type-wide
	Err    error
}

// Error implements the error interface
func (e *CreationError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("could not create %s: %s: %v", typeName(e.Type), e.Member, e.Err)
	}
	return fmt.Sprintf("could not create %s: %v", typeName(e.Type), e.Err)
}

// Unwrap returns the underlying error
func (e *CreationError) Unwrap() error {
	return e.Err
}

// NewCreationError builds a CreationError for a type and optional member.
func NewCreationError(t reflect.Type, member string, err error) *CreationError {
	return &CreationError{Type: t, Member: member, Err: err}
}

// CoercionError reports a remote parameter value that could not be
// converted into the bound field's type.
type CoercionError struct {
	Parameter  string
	Owner      reflect.Type
	Field      string
	RemoteKind string
	Raw        string
	Err        error
}

// Error implements the error interface
func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce parameter %q (%s %q) into %s.%s: %v",
		e.Parameter, e.RemoteKind, e.Raw, typeName(e.Owner), e.Field, e.Err)
}

// Unwrap returns the underlying error
func (e *CoercionError) Unwrap() error {
	return e.Err
}

// InvocationError wraps an error returned or raised by a user method bound
// to an init, repeat or subscribe marker.
type InvocationError struct {
	Owner  reflect.Type
	Method string
	Err    error
}

// Error implements the error interface
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s.%s: %v", typeName(e.Owner), e.Method, e.Err)
}

// Unwrap returns the underlying error
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// UnknownParameterError reports a remote change for a name no binding owns.
type UnknownParameterError struct {
	Name string
}

// Error implements the error interface
func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q", e.Name)
}

// PanicError carries a value recovered from a panicking user method.
type PanicError struct {
	Value any
}

// Error implements the error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
