package component

import (
	"fmt"
	"reflect"

	"github.com/c360/nodekit/errors"
)

// Invoke calls the bound method on instance, which must be a pointer to the
// descriptor's struct type. It returns false only when the method returned
// a false bool. Returned errors and panics come back as InvocationError.
func (b MethodBinding) Invoke(instance reflect.Value, args ...reflect.Value) (cont bool, err error) {
	cont = true
	defer func() {
		if r := recover(); r != nil {
			err = &errors.InvocationError{
				Owner:  instance.Type(),
				Method: b.Method,
				Err:    &errors.PanicError{Value: r},
			}
		}
	}()

	out := instance.Method(b.Index).Call(args)

	var callErr error
	switch b.Results {
	case ResultsBool:
		cont = out[0].Bool()
	case ResultsError:
		callErr, _ = out[0].Interface().(error)
	case ResultsBoolError:
		cont = out[0].Bool()
		callErr, _ = out[1].Interface().(error)
	}

	if callErr != nil {
		return cont, &errors.InvocationError{Owner: instance.Type(), Method: b.Method, Err: callErr}
	}
	return cont, nil
}

// Absent returns the value handed to a subscribe method when no message
// arrived within its timeout.
func (b MethodBinding) Absent() reflect.Value {
	return reflect.Zero(b.ArgType)
}

// Arg converts an inbound message into the subscribe method's argument.
// A nil message yields the absent value. A message that fits neither the
// argument type nor its pointer or element type is reported as
// ErrInvalidData.
func (b MethodBinding) Arg(msg any) (reflect.Value, error) {
	if msg == nil {
		return b.Absent(), nil
	}
	v := reflect.ValueOf(msg)
	if v.Type().AssignableTo(b.ArgType) {
		return v, nil
	}
	if v.Kind() == reflect.Pointer && v.Type().Elem().AssignableTo(b.ArgType) {
		if v.IsNil() {
			return b.Absent(), nil
		}
		return v.Elem(), nil
	}
	if b.ArgType.Kind() == reflect.Pointer && v.Type().AssignableTo(b.ArgType.Elem()) {
		p := reflect.New(b.ArgType.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	return b.Absent(), fmt.Errorf("%w: message %T does not fit %s argument %s",
		errors.ErrInvalidData, msg, b.Method, b.ArgType)
}
