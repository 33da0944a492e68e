// Package transport defines the pub/sub node abstraction the runtime wires
// components against, together with an in-process implementation and the
// single-threaded executor that drains inbound deliveries.
package transport

import (
	"context"
	"reflect"
	"time"
)

// Publisher is a handle bound to one topic.
type Publisher interface {
	Topic() string
	Publish(msg any) error
}

// Subscription is a live registration for inbound messages on one topic.
type Subscription interface {
	Topic() string
	Close() error
}

// Node creates publishers and subscriptions on a middleware connection.
//
// Inbound messages are not handed to callbacks directly. Each delivery is
// queued on Deliveries and runs when an Executor polls the node.
type Node interface {
	Name() string
	Namespace() string

	// CreatePublisher binds a publisher to topic. A nil msgType accepts any
	// message value.
	CreatePublisher(topic string, msgType reflect.Type) (Publisher, error)

	// CreateSubscription registers onMessage for topic. Inbound payloads are
	// converted to msgType. At most queueLength deliveries are pending for
	// the subscription at any time; further messages are dropped.
	CreateSubscription(topic string, msgType reflect.Type, queueLength int, onMessage func(msg any)) (Subscription, error)

	Deliveries() <-chan func()
	Close() error
}

// Executor polls nodes and runs their queued deliveries.
type Executor interface {
	AddNode(n Node)
	RemoveNode(n Node)
	SpinOnce(timeout time.Duration) bool
	Spin(ctx context.Context)
	IsRunning() bool
	Shutdown()
}

// DropNotifier is implemented by nodes that report inbound messages refused
// because a subscription queue was full.
type DropNotifier interface {
	OnDrop(fn func(topic string))
}

// DefaultQueueLength is the per-subscription bound used when none is given.
const DefaultQueueLength = 5
