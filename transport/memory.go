package transport

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/nodekit/errors"
)

// dropWarnInterval bounds how often a subscription logs refused payloads.
const dropWarnInterval = 10 * time.Second

// Bus is an in-process message broker shared by MemoryNodes.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	subs      map[string][]*memorySubscription
	recording bool
	published map[string][]any
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithRecording keeps every published message per topic so tests can
// inspect traffic through Published. A bus without it retains nothing.
func WithRecording() BusOption {
	return func(b *Bus) {
		b.recording = true
	}
}

// WithBusLogger sets the logger nodes on the bus report refused payloads to.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		logger: slog.Default(),
		subs:   make(map[string][]*memorySubscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.recording {
		b.published = make(map[string][]any)
	}
	return b
}

// Published returns a copy of the messages published on topic. It is
// always empty unless the bus was created WithRecording.
func (b *Bus) Published(topic string) []any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]any, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

// Inject delivers msg on topic as if a remote peer had published it.
func (b *Bus) Inject(topic string, msg any) {
	b.dispatch(topic, msg)
}

func (b *Bus) dispatch(topic string, msg any) {
	b.mu.Lock()
	if b.recording {
		b.published[topic] = append(b.published[topic], msg)
	}
	subs := make([]*memorySubscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	// Deliver outside the lock so handlers may publish
	for _, s := range subs {
		s.deliver(msg)
	}
}

func (b *Bus) add(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s.topic] = append(b.subs[s.topic], s)
}

func (b *Bus) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[s.topic]
	for i, candidate := range list {
		if candidate == s {
			b.subs[s.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// MemoryNode is a Node attached to a Bus.
type MemoryNode struct {
	id     string
	name   string
	names  Names
	bus    *Bus
	inbox  *Inbox
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*memorySubscription
	onDrop func(topic string)
}

// NewNode attaches a new node to the bus.
func (b *Bus) NewNode(name string, names Names) *MemoryNode {
	id := uuid.NewString()
	return &MemoryNode{
		id:     id,
		name:   name,
		names:  names,
		bus:    b,
		inbox:  NewInbox(0),
		logger: b.logger.With("component", "memorynode", "node", name, "node_id", id),
	}
}

// ID returns the unique node identifier.
func (n *MemoryNode) ID() string { return n.id }

// Name returns the node name.
func (n *MemoryNode) Name() string { return n.name }

// Namespace returns the node namespace.
func (n *MemoryNode) Namespace() string { return n.names.Namespace }

// Deliveries returns the queue of pending inbound callbacks.
func (n *MemoryNode) Deliveries() <-chan func() { return n.inbox.C() }

// CreatePublisher implements Node.
func (n *MemoryNode) CreatePublisher(topic string, msgType reflect.Type) (Publisher, error) {
	if n.inbox.Closed() {
		return nil, errors.WrapInvalid(errors.ErrNodeClosed, "MemoryNode", "CreatePublisher", "node state check")
	}
	return &memoryPublisher{topic: n.names.Resolve(topic), msgType: msgType, node: n}, nil
}

// CreateSubscription implements Node.
func (n *MemoryNode) CreateSubscription(topic string, msgType reflect.Type, queueLength int, onMessage func(msg any)) (Subscription, error) {
	if n.inbox.Closed() {
		return nil, errors.WrapInvalid(errors.ErrNodeClosed, "MemoryNode", "CreateSubscription", "node state check")
	}
	if onMessage == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil handler"), "MemoryNode", "CreateSubscription", "handler validation")
	}

	s := &memorySubscription{
		topic:     n.names.Resolve(topic),
		msgType:   msgType,
		onMessage: onMessage,
		gate:      NewGate(queueLength),
		node:      n,
		warn:      rate.Sometimes{Interval: dropWarnInterval},
	}
	n.bus.add(s)

	n.mu.Lock()
	n.subs = append(n.subs, s)
	n.mu.Unlock()
	return s, nil
}

// OnDrop implements DropNotifier.
func (n *MemoryNode) OnDrop(fn func(topic string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onDrop = fn
}

func (n *MemoryNode) dropped(topic string) {
	n.mu.Lock()
	fn := n.onDrop
	n.mu.Unlock()
	if fn != nil {
		fn(topic)
	}
}

// Close detaches every subscription and stops accepting deliveries.
func (n *MemoryNode) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, s := range subs {
		n.bus.remove(s)
	}
	n.inbox.Close()
	return nil
}

type memoryPublisher struct {
	topic   string
	msgType reflect.Type
	node    *MemoryNode
}

func (p *memoryPublisher) Topic() string { return p.topic }

func (p *memoryPublisher) Publish(msg any) error {
	if p.node.inbox.Closed() {
		return errors.ErrNodeClosed
	}
	if p.msgType != nil && msg != nil && !reflect.TypeOf(msg).AssignableTo(p.msgType) {
		return errors.WrapInvalid(
			fmt.Errorf("message %T is not %s", msg, p.msgType),
			"MemoryNode", "Publish", "message type check")
	}
	p.node.bus.dispatch(p.topic, msg)
	return nil
}

type memorySubscription struct {
	topic     string
	msgType   reflect.Type
	onMessage func(msg any)
	gate      *Gate
	node      *MemoryNode
	warn      rate.Sometimes
}

func (s *memorySubscription) Topic() string { return s.topic }

func (s *memorySubscription) Close() error {
	s.node.bus.remove(s)
	return nil
}

func (s *memorySubscription) deliver(msg any) {
	converted, err := Convert(msg, s.msgType)
	if err != nil {
		s.warn.Do(func() {
			s.node.logger.Warn("Dropping unconvertible message", "topic", s.topic, "error", err)
		})
		s.node.dropped(s.topic)
		return
	}
	if !s.node.inbox.Post(s.gate, func() { s.onMessage(converted) }) && !s.node.inbox.Closed() {
		s.node.dropped(s.topic)
	}
}
