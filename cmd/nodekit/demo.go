package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/nodekit/component"
	"github.com/c360/nodekit/transport"
)

// Chatter is the demo message.
type Chatter struct {
	Data  string          `json:"data"`
	Stamp component.Stamp `json:"stamp"`
}

// Talker publishes a numbered greeting once a second.
type Talker struct {
	Pub      transport.Publisher `node:"publish:chatter"`
	Greeting string              `node:"param:greeting"`
	Clock    *component.Clock    `node:"clock"`
	Log      *slog.Logger        `node:"log"`

	count atomic.Int64
}

// Construct sets parameter defaults
func (t *Talker) Construct() error {
	t.Greeting = "hello world"
	return nil
}

// NodeMethods declares the talker schedule
func (t *Talker) NodeMethods() []component.MethodMarker {
	return []component.MethodMarker{
		component.Init("Setup"),
		component.Repeat("Talk", component.Interval(time.Second)),
	}
}

// Setup runs once the parameters are resolved.
func (t *Talker) Setup() {
	t.Log.Info("Talker ready", "topic", t.Pub.Topic(), "greeting", t.Greeting)
}

// Talk publishes one message.
func (t *Talker) Talk() error {
	n := t.count.Add(1)
	msg := &Chatter{Data: fmt.Sprintf("%s %d", t.Greeting, n), Stamp: t.Clock.TimeNow()}
	if err := t.Pub.Publish(msg); err != nil {
		return err
	}
	t.Log.Info("Publishing", "data", msg.Data)
	return nil
}

// Listener logs chatter and complains when it goes quiet.
type Listener struct {
	Name string       `node:"name"`
	Log  *slog.Logger `node:"log"`

	heard atomic.Int64
}

// NodeMethods declares the listener subscription
func (l *Listener) NodeMethods() []component.MethodMarker {
	return []component.MethodMarker{
		component.Subscribe("OnChatter", "chatter", component.Timeout(5*time.Second)),
	}
}

// OnChatter receives chatter, or nil after five quiet seconds.
func (l *Listener) OnChatter(msg *Chatter) {
	if msg == nil {
		l.Log.Warn("No chatter received", "node", l.Name)
		return
	}
	l.heard.Add(1)
	l.Log.Info("I heard", "data", msg.Data)
}
