package component

import (
	"reflect"
	"time"

	"github.com/c360/nodekit/transport"
)

// FieldKind identifies the wiring applied to a tagged field.
type FieldKind int

// Field marker kinds
const (
	FieldPublish FieldKind = iota + 1
	FieldParam
	FieldInject
	FieldName
	FieldClock
	FieldLog
)

// String returns the tag directive for the kind
func (k FieldKind) String() string {
	switch k {
	case FieldPublish:
		return "publish"
	case FieldParam:
		return "param"
	case FieldInject:
		return "inject"
	case FieldName:
		return "name"
	case FieldClock:
		return "clock"
	case FieldLog:
		return "log"
	default:
		return "unknown"
	}
}

// FieldMarker describes one tagged field of a component struct.
type FieldMarker struct {
	Kind  FieldKind
	Value string // topic, parameter name or inject name
	Field string
	Index []int
	Type  reflect.Type
}

// MethodKind identifies the lifecycle role of a method.
type MethodKind int

// Method marker kinds
const (
	MethodInit MethodKind = iota + 1
	MethodRepeat
	MethodSubscribe
)

// String returns the marker name
func (k MethodKind) String() string {
	switch k {
	case MethodInit:
		return "init"
	case MethodRepeat:
		return "repeat"
	case MethodSubscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// MethodMarker declares the role of one exported method. Components return
// their markers from NodeMethods.
type MethodMarker struct {
	Kind   MethodKind
	Method string

	// Repeat policy
	Delay    time.Duration
	Interval time.Duration
	Count    int

	// Subscription
	Topic       string
	Timeout     time.Duration
	QueueLength int
}

// Init marks a method to run once after parameters are resolved.
func Init(method string) MethodMarker {
	return MethodMarker{Kind: MethodInit, Method: method}
}

// RepeatOption configures a repeat marker.
type RepeatOption func(*MethodMarker)

// Delay pauses d after each invocation finishes.
func Delay(d time.Duration) RepeatOption {
	return func(m *MethodMarker) { m.Delay = d }
}

// Interval schedules invocations every d from the first one.
func Interval(d time.Duration) RepeatOption {
	return func(m *MethodMarker) { m.Interval = d }
}

// Count bounds the number of invocations. Zero means unbounded.
func Count(n int) RepeatOption {
	return func(m *MethodMarker) { m.Count = n }
}

// Repeat marks a method to be invoked periodically on its own goroutine.
// Without Delay or Interval the method runs back to back until it returns
// false.
func Repeat(method string, opts ...RepeatOption) MethodMarker {
	m := MethodMarker{Kind: MethodRepeat, Method: method}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// SubscribeOption configures a subscribe marker.
type SubscribeOption func(*MethodMarker)

// Timeout invokes the handler with an empty message whenever nothing
// arrived for d.
func Timeout(d time.Duration) SubscribeOption {
	return func(m *MethodMarker) { m.Timeout = d }
}

// QueueLength bounds the pending deliveries of the subscription.
func QueueLength(n int) SubscribeOption {
	return func(m *MethodMarker) { m.QueueLength = n }
}

// Subscribe marks a single-argument method as the handler for topic.
func Subscribe(method, topic string, opts ...SubscribeOption) MethodMarker {
	m := MethodMarker{Kind: MethodSubscribe, Method: method, Topic: topic, QueueLength: transport.DefaultQueueLength}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// MethodDescriber is implemented by components that declare method markers.
type MethodDescriber interface {
	NodeMethods() []MethodMarker
}

// Constructor is implemented by components that need to set defaults or
// acquire resources after allocation. A returned error aborts creation.
type Constructor interface {
	Construct() error
}
