//go:build integration

package natsnode

import (
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodekit/natsclient"
	"github.com/c360/nodekit/transport"
)

type chatter struct {
	Data string `json:"data"`
}

func TestNodePublishSubscribe(t *testing.T) {
	tc := natsclient.NewTestClient(t)

	talker := New(tc.Client, "talker", transport.Names{Namespace: "/demo"}, nil)
	listener := New(tc.Client, "listener", transport.Names{Namespace: "/demo"}, nil)
	defer talker.Close()
	defer listener.Close()

	var got atomic.Value
	sub, err := listener.CreateSubscription("chatter", reflect.TypeOf(&chatter{}), 5, func(msg any) {
		got.Store(msg)
	})
	require.NoError(t, err)
	assert.Equal(t, "/demo/chatter", sub.Topic())

	pub, err := talker.CreatePublisher("chatter", reflect.TypeOf(&chatter{}))
	require.NoError(t, err)

	exec := transport.NewExecutor(nil)
	defer exec.Shutdown()
	exec.AddNode(listener)

	require.Eventually(t, func() bool {
		_ = pub.Publish(&chatter{Data: "hello"})
		exec.SpinOnce(50 * time.Millisecond)
		return got.Load() != nil
	}, 5*time.Second, 100*time.Millisecond)

	msg, ok := got.Load().(*chatter)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Data)
}
