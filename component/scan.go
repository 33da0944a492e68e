package component

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/transport"
)

var (
	publisherType = reflect.TypeOf((*transport.Publisher)(nil)).Elem()
	clockType     = reflect.TypeOf((*Clock)(nil))
	loggerType    = reflect.TypeOf((*slog.Logger)(nil))
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	boolType      = reflect.TypeOf(false)
)

// Results describes what a marked method returns.
type Results int

// Supported result shapes
const (
	ResultsNone Results = iota
	ResultsBool
	ResultsError
	ResultsBoolError
)

// MethodBinding is a method marker resolved against a component type.
type MethodBinding struct {
	MethodMarker
	Index   int          // method index on the pointer type
	ArgType reflect.Type // subscribe only
	Results Results
}

// Descriptor is the wiring metadata of one component type. It is immutable
// once built.
type Descriptor struct {
	Type    reflect.Type // the struct type
	Fields  []FieldMarker
	Methods []MethodBinding
}

// FieldsOf returns the field markers of kind k in declaration order.
func (d *Descriptor) FieldsOf(k FieldKind) []FieldMarker {
	var out []FieldMarker
	for _, f := range d.Fields {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// MethodsOf returns the method bindings of kind k in declaration order.
func (d *Descriptor) MethodsOf(k MethodKind) []MethodBinding {
	var out []MethodBinding
	for _, m := range d.Methods {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

var descriptors sync.Map // reflect.Type -> *Descriptor

// Scan returns the descriptor of t, which must be a struct or a pointer to
// a struct. Descriptors are built once per type and cached.
func Scan(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil type"), "Scanner", "Scan", "type validation")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.NewCreationError(t, "", fmt.Errorf("%w: component must be a struct", errors.ErrInvalidSlotType))
	}

	if cached, ok := descriptors.Load(t); ok {
		return cached.(*Descriptor), nil
	}

	d, err := build(t)
	if err != nil {
		return nil, err
	}
	actual, _ := descriptors.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

func build(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{Type: t}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup(TagName)
		if !ok {
			continue
		}

		directives, err := ParseNodeTag(tag)
		if err != nil {
			return nil, errors.NewCreationError(t, sf.Name, err)
		}
		if len(directives) == 0 {
			continue
		}
		if len(directives) > 1 {
			return nil, errors.NewCreationError(t, sf.Name,
				fmt.Errorf("%w: %d markers on one field", errors.ErrMarkerConflict, len(directives)))
		}
		if !sf.IsExported() {
			return nil, errors.NewCreationError(t, sf.Name, errors.ErrAccessDenied)
		}

		marker := FieldMarker{
			Kind:  directives[0].Kind,
			Value: directives[0].Value,
			Field: sf.Name,
			Index: sf.Index,
			Type:  sf.Type,
		}
		if err := checkFieldType(marker); err != nil {
			return nil, errors.NewCreationError(t, sf.Name, err)
		}
		d.Fields = append(d.Fields, marker)
	}

	methods, err := scanMethods(t)
	if err != nil {
		return nil, err
	}
	d.Methods = methods
	return d, nil
}

func checkFieldType(m FieldMarker) error {
	switch m.Kind {
	case FieldPublish:
		if m.Type != publisherType {
			return fmt.Errorf("%w: publish slot must be transport.Publisher, got %s", errors.ErrInvalidSlotType, m.Type)
		}
	case FieldName:
		if m.Type.Kind() != reflect.String {
			return fmt.Errorf("%w: name slot must be a string, got %s", errors.ErrInvalidSlotType, m.Type)
		}
	case FieldClock:
		if m.Type != clockType {
			return fmt.Errorf("%w: clock slot must be *component.Clock, got %s", errors.ErrInvalidSlotType, m.Type)
		}
	case FieldLog:
		if m.Type != loggerType {
			return fmt.Errorf("%w: log slot must be *slog.Logger, got %s", errors.ErrInvalidSlotType, m.Type)
		}
	case FieldInject:
		if m.Type.Kind() != reflect.Pointer || m.Type.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("%w: inject slot must be a pointer to a struct, got %s", errors.ErrInvalidSlotType, m.Type)
		}
	case FieldParam:
		switch m.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			return fmt.Errorf("%w: parameter slot cannot be %s", errors.ErrInvalidSlotType, m.Type.Kind())
		}
	}
	return nil
}

func scanMethods(t reflect.Type) ([]MethodBinding, error) {
	pt := reflect.PointerTo(t)
	if !pt.Implements(reflect.TypeOf((*MethodDescriber)(nil)).Elem()) {
		return nil, nil
	}

	// NodeMethods must not depend on instance state
	markers := reflect.New(t).Interface().(MethodDescriber).NodeMethods()

	seen := make(map[string]bool, len(markers))
	bindings := make([]MethodBinding, 0, len(markers))
	for _, marker := range markers {
		if seen[marker.Method] {
			return nil, errors.NewCreationError(t, marker.Method,
				fmt.Errorf("%w: method declared more than once", errors.ErrMarkerConflict))
		}
		seen[marker.Method] = true

		b, err := bindMethod(pt, marker)
		if err != nil {
			return nil, errors.NewCreationError(t, marker.Method, err)
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

func bindMethod(pt reflect.Type, marker MethodMarker) (MethodBinding, error) {
	m, ok := pt.MethodByName(marker.Method)
	if !ok {
		return MethodBinding{}, errors.ErrMethodNotFound
	}
	ft := m.Type // receiver is In(0)
	b := MethodBinding{MethodMarker: marker, Index: m.Index}

	switch marker.Kind {
	case MethodInit:
		if ft.NumIn() != 1 {
			return b, fmt.Errorf("%w: init method takes no arguments", errors.ErrInvalidHandler)
		}
		if !resultsIn(ft, ResultsNone, ResultsError) {
			return b, fmt.Errorf("%w: init method may only return error", errors.ErrInvalidHandler)
		}

	case MethodRepeat:
		if ft.NumIn() != 1 {
			return b, fmt.Errorf("%w: repeat method takes no arguments", errors.ErrInvalidHandler)
		}
		if marker.Delay < 0 || marker.Interval < 0 || marker.Count < 0 {
			return b, fmt.Errorf("%w: negative repeat policy", errors.ErrInvalidHandler)
		}
		if marker.Delay > 0 && marker.Interval > 0 {
			return b, fmt.Errorf("%w: delay and interval are exclusive", errors.ErrMarkerConflict)
		}

	case MethodSubscribe:
		if ft.NumIn() != 2 {
			return b, fmt.Errorf("%w: subscribe method needs exactly one parameter, has %d",
				errors.ErrInvalidHandler, ft.NumIn()-1)
		}
		if marker.Topic == "" {
			return b, fmt.Errorf("%w: subscribe marker without topic", errors.ErrInvalidHandler)
		}
		if marker.Timeout < 0 {
			return b, fmt.Errorf("%w: negative timeout", errors.ErrInvalidHandler)
		}
		if !resultsIn(ft, ResultsNone, ResultsError) {
			return b, fmt.Errorf("%w: subscribe method may only return error", errors.ErrInvalidHandler)
		}
		b.ArgType = ft.In(1)
		if b.QueueLength <= 0 {
			b.QueueLength = transport.DefaultQueueLength
		}

	default:
		return b, fmt.Errorf("%w: unknown method marker %d", errors.ErrInvalidHandler, marker.Kind)
	}

	r, ok := resultsOf(ft)
	if !ok {
		return b, fmt.Errorf("%w: unsupported return values", errors.ErrInvalidHandler)
	}
	b.Results = r
	return b, nil
}

func resultsOf(ft reflect.Type) (Results, bool) {
	switch ft.NumOut() {
	case 0:
		return ResultsNone, true
	case 1:
		switch ft.Out(0) {
		case boolType:
			return ResultsBool, true
		case errorType:
			return ResultsError, true
		}
	case 2:
		if ft.Out(0) == boolType && ft.Out(1) == errorType {
			return ResultsBoolError, true
		}
	}
	return 0, false
}

func resultsIn(ft reflect.Type, allowed ...Results) bool {
	r, ok := resultsOf(ft)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
