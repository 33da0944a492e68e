// Package natsnode implements transport.Node over core NATS. Messages are
// JSON payloads and topic "/a/b" maps to subject "a.b".
package natsnode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/logging"
	"github.com/c360/nodekit/natsclient"
	"github.com/c360/nodekit/transport"
)

// Node is a transport.Node backed by a NATS connection.
type Node struct {
	id     string
	name   string
	names  transport.Names
	client *natsclient.Client
	owned  bool
	logger *slog.Logger
	seldom *logging.Seldom
	inbox  *transport.Inbox

	mu     sync.Mutex
	subs   []*subscription
	onDrop func(topic string)
}

// New creates a node on an already connected client. Close leaves the
// client open.
func New(client *natsclient.Client, name string, names transport.Names, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("component", "natsnode", "node", name, "node_id", id)
	return &Node{
		id:     id,
		name:   name,
		names:  names,
		client: client,
		logger: logger,
		seldom: logging.NewSeldom(logger, logging.SeldomWindow),
		inbox:  transport.NewInbox(0),
	}
}

// Dial connects a dedicated client to url and creates a node on it. The
// client is closed with the node.
func Dial(ctx context.Context, url, name string, names transport.Names, logger *slog.Logger, opts ...natsclient.ClientOption) (*Node, error) {
	opts = append([]natsclient.ClientOption{
		natsclient.WithName(fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])),
		natsclient.WithLogger(logger),
	}, opts...)

	client, err := natsclient.NewClient(url, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	n := New(client, name, names, logger)
	n.owned = true
	return n, nil
}

// ID returns the unique node identifier.
func (n *Node) ID() string { return n.id }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Namespace returns the node namespace.
func (n *Node) Namespace() string { return n.names.Namespace }

// Client returns the underlying NATS client.
func (n *Node) Client() *natsclient.Client { return n.client }

// Deliveries implements transport.Node.
func (n *Node) Deliveries() <-chan func() { return n.inbox.C() }

// OnDrop implements transport.DropNotifier.
func (n *Node) OnDrop(fn func(topic string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onDrop = fn
}

// CreatePublisher implements transport.Node.
func (n *Node) CreatePublisher(topic string, msgType reflect.Type) (transport.Publisher, error) {
	if n.inbox.Closed() {
		return nil, errors.WrapInvalid(errors.ErrNodeClosed, "natsnode", "CreatePublisher", "node state check")
	}
	resolved := n.names.Resolve(topic)
	return &publisher{
		topic:   resolved,
		subject: transport.Subject(resolved),
		msgType: msgType,
		client:  n.client,
	}, nil
}

// CreateSubscription implements transport.Node.
func (n *Node) CreateSubscription(topic string, msgType reflect.Type, queueLength int, onMessage func(msg any)) (transport.Subscription, error) {
	if n.inbox.Closed() {
		return nil, errors.WrapInvalid(errors.ErrNodeClosed, "natsnode", "CreateSubscription", "node state check")
	}
	if onMessage == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil handler"), "natsnode", "CreateSubscription", "handler validation")
	}

	resolved := n.names.Resolve(topic)
	s := &subscription{topic: resolved, gate: transport.NewGate(queueLength)}

	sub, err := n.client.Subscribe(transport.Subject(resolved), func(_ string, data []byte) {
		msg, err := transport.Decode(data, msgType)
		if err != nil {
			n.seldom.Warn("Dropping undecodable message", "topic", resolved, "error", err)
			n.dropped(resolved)
			return
		}
		if !n.inbox.Post(s.gate, func() { onMessage(msg) }) && !n.inbox.Closed() {
			n.dropped(resolved)
		}
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsnode", "CreateSubscription", "subscribe "+resolved)
	}
	s.sub = sub

	n.mu.Lock()
	n.subs = append(n.subs, s)
	n.mu.Unlock()
	return s, nil
}

func (n *Node) dropped(topic string) {
	n.mu.Lock()
	fn := n.onDrop
	n.mu.Unlock()
	if fn != nil {
		fn(topic)
	}
}

// Close unsubscribes everything and stops accepting deliveries.
func (n *Node) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			n.logger.Debug("Unsubscribe failed", "topic", s.topic, "error", err)
		}
	}
	n.inbox.Close()

	if n.owned {
		return n.client.Close(context.Background())
	}
	return nil
}

type publisher struct {
	topic   string
	subject string
	msgType reflect.Type
	client  *natsclient.Client
}

func (p *publisher) Topic() string { return p.topic }

func (p *publisher) Publish(msg any) error {
	if p.msgType != nil && msg != nil && !reflect.TypeOf(msg).AssignableTo(p.msgType) {
		return errors.WrapInvalid(
			fmt.Errorf("message %T is not %s", msg, p.msgType),
			"natsnode", "Publish", "message type check")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "natsnode", "Publish", "encode message")
	}
	if err := p.client.Publish(p.subject, data); err != nil {
		return errors.WrapTransient(err, "natsnode", "Publish", "publish to "+p.subject)
	}
	return nil
}

type subscription struct {
	topic string
	gate  *transport.Gate
	sub   *nats.Subscription
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Close() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
