package transport

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Inbox buffers inbound deliveries for a node until an executor runs them.
// Node implementations embed one and expose C as Deliveries.
type Inbox struct {
	ch        chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewInbox creates an inbox holding at most capacity queued deliveries.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 256
	}
	return &Inbox{
		ch:   make(chan func(), capacity),
		done: make(chan struct{}),
	}
}

// C returns the delivery channel.
func (b *Inbox) C() <-chan func() {
	return b.ch
}

// Close stops accepting deliveries. Queued ones stay readable.
func (b *Inbox) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Closed reports whether Close was called.
func (b *Inbox) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Gate limits the pending deliveries of a single subscription.
type Gate struct {
	limit   int64
	pending atomic.Int64
	dropped atomic.Int64
}

// NewGate creates a gate admitting at most limit pending deliveries.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultQueueLength
	}
	return &Gate{limit: int64(limit)}
}

// Dropped returns the number of deliveries refused so far.
func (g *Gate) Dropped() int64 {
	return g.dropped.Load()
}

// Post queues fn through gate. It returns false when the gate is full, the
// inbox is full, or the inbox is closed.
func (b *Inbox) Post(g *Gate, fn func()) bool {
	if b.Closed() {
		return false
	}
	if g.pending.Add(1) > g.limit {
		g.pending.Add(-1)
		g.dropped.Add(1)
		return false
	}
	wrapped := func() {
		g.pending.Add(-1)
		fn()
	}
	select {
	case b.ch <- wrapped:
		return true
	default:
		g.pending.Add(-1)
		g.dropped.Add(1)
		return false
	}
}

// Convert adapts msg to msgType. Values already assignable pass through;
// a T is promoted to *T; anything else is converted through its JSON form.
func Convert(msg any, msgType reflect.Type) (any, error) {
	if msgType == nil || msg == nil {
		return msg, nil
	}
	v := reflect.ValueOf(msg)
	if v.Type().AssignableTo(msgType) {
		return msg, nil
	}
	if msgType.Kind() == reflect.Pointer && v.Type().AssignableTo(msgType.Elem()) {
		p := reflect.New(msgType.Elem())
		p.Elem().Set(v)
		return p.Interface(), nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return Decode(data, msgType)
}

// Decode unmarshals a JSON payload into a fresh value of msgType.
func Decode(data []byte, msgType reflect.Type) (any, error) {
	if msgType == nil {
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if msgType.Kind() == reflect.Pointer {
		p := reflect.New(msgType.Elem())
		if err := json.Unmarshal(data, p.Interface()); err != nil {
			return nil, fmt.Errorf("decode into %s: %w", msgType, err)
		}
		return p.Interface(), nil
	}
	p := reflect.New(msgType)
	if err := json.Unmarshal(data, p.Interface()); err != nil {
		return nil, fmt.Errorf("decode into %s: %w", msgType, err)
	}
	return p.Elem().Interface(), nil
}
