package transport

import (
	"bytes"
	"context"
	"log/slog"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatter struct {
	Data string `json:"data"`
}

type otherChatter struct {
	Data string `json:"data"`
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		namespace string
		name      string
		want      string
	}{
		{"", "chatter", "/chatter"},
		{"/", "chatter", "/chatter"},
		{"robot", "scan", "/robot/scan"},
		{"/robot/", "scan", "/robot/scan"},
		{"robot", "/rosout", "/rosout"},
		{"", "a//b/", "/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.namespace+"|"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveName(tt.namespace, tt.name))
		})
	}
}

func TestNames_Remap(t *testing.T) {
	names := Names{
		Namespace: "robot",
		Remaps:    map[string]string{"chatter": "/talk"},
	}

	assert.Equal(t, "/talk", names.Resolve("chatter"))
	assert.Equal(t, "/talk", names.Resolve("/robot/chatter"))
	assert.Equal(t, "/robot/scan", names.Resolve("scan"))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "robot.scan", Subject("/robot/scan"))
	assert.Equal(t, "rosout", Subject("/rosout"))
}

func TestMemoryNode_PublishSubscribe(t *testing.T) {
	bus := NewBus(WithRecording())
	node := bus.NewNode("talker", Names{})
	exec := NewExecutor(nil)
	defer exec.Shutdown()
	exec.AddNode(node)

	received := make(chan *chatter, 1)
	sub, err := node.CreateSubscription("chatter", reflect.TypeOf(&chatter{}), 5, func(msg any) {
		received <- msg.(*chatter)
	})
	require.NoError(t, err)
	assert.Equal(t, "/chatter", sub.Topic())

	pub, err := node.CreatePublisher("chatter", nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(&chatter{Data: "hello"}))

	require.True(t, exec.SpinOnce(time.Second))
	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg.Data)
	default:
		t.Fatal("expected delivery after SpinOnce")
	}
	assert.Len(t, bus.Published("/chatter"), 1)
}

func TestMemoryNode_ConvertsMessageTypes(t *testing.T) {
	bus := NewBus()
	node := bus.NewNode("listener", Names{})
	exec := NewExecutor(nil)
	defer exec.Shutdown()
	exec.AddNode(node)

	var got atomic.Value
	_, err := node.CreateSubscription("chatter", reflect.TypeOf(&otherChatter{}), 5, func(msg any) {
		got.Store(msg)
	})
	require.NoError(t, err)

	bus.Inject("/chatter", chatter{Data: "converted"})
	require.True(t, exec.SpinOnce(time.Second))

	msg, ok := got.Load().(*otherChatter)
	require.True(t, ok)
	assert.Equal(t, "converted", msg.Data)
}

func TestMemoryNode_QueueLengthDropsOverflow(t *testing.T) {
	bus := NewBus()
	node := bus.NewNode("listener", Names{})

	var drops []string
	node.OnDrop(func(topic string) { drops = append(drops, topic) })

	count := 0
	_, err := node.CreateSubscription("burst", nil, 2, func(any) { count++ })
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Inject("/burst", i)
	}

	exec := NewExecutor(nil)
	defer exec.Shutdown()
	exec.AddNode(node)
	for exec.SpinOnce(50 * time.Millisecond) {
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"/burst", "/burst", "/burst"}, drops)
}

func TestBus_RetainsNothingByDefault(t *testing.T) {
	bus := NewBus()
	node := bus.NewNode("talker", Names{})

	pub, err := node.CreatePublisher("chatter", nil)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, pub.Publish(&chatter{Data: "hello"}))
	}
	bus.Inject("/chatter", chatter{Data: "injected"})

	assert.Empty(t, bus.Published("/chatter"))
	assert.Nil(t, bus.published, "no history map without WithRecording")
}

func TestBus_WithRecordingKeepsHistory(t *testing.T) {
	bus := NewBus(WithRecording())
	bus.Inject("/chatter", "a")
	bus.Inject("/chatter", "b")
	bus.Inject("/other", "c")

	assert.Equal(t, []any{"a", "b"}, bus.Published("/chatter"))
	assert.Equal(t, []any{"c"}, bus.Published("/other"))
}

func TestMemoryNode_UnconvertibleMessageIsReported(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	bus := NewBus(WithBusLogger(logger))
	node := bus.NewNode("listener", Names{})

	var drops []string
	node.OnDrop(func(topic string) { drops = append(drops, topic) })

	calls := 0
	_, err := node.CreateSubscription("chatter", reflect.TypeOf(&chatter{}), 5, func(any) { calls++ })
	require.NoError(t, err)

	bus.Inject("/chatter", 42)
	bus.Inject("/chatter", 43)

	exec := NewExecutor(nil)
	defer exec.Shutdown()
	exec.AddNode(node)
	assert.False(t, exec.SpinOnce(50*time.Millisecond), "nothing was queued")

	assert.Zero(t, calls)
	assert.Equal(t, []string{"/chatter", "/chatter"}, drops)
	out := buf.String()
	assert.Contains(t, out, "Dropping unconvertible message")
	assert.Contains(t, out, "topic=/chatter")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Dropping unconvertible message")), "warning is rate limited")
}

func TestMemoryNode_PublisherTypeCheck(t *testing.T) {
	node := NewBus().NewNode("talker", Names{})

	pub, err := node.CreatePublisher("chatter", reflect.TypeOf(&chatter{}))
	require.NoError(t, err)

	assert.NoError(t, pub.Publish(&chatter{}))
	assert.Error(t, pub.Publish("not a chatter"))
}

func TestMemoryNode_Close(t *testing.T) {
	bus := NewBus()
	node := bus.NewNode("talker", Names{})

	pub, err := node.CreatePublisher("chatter", nil)
	require.NoError(t, err)
	require.NoError(t, node.Close())

	assert.Error(t, pub.Publish("late"))
	_, err = node.CreatePublisher("other", nil)
	assert.Error(t, err)
}

func TestExecutor_SpinStopsOnShutdown(t *testing.T) {
	exec := NewExecutor(nil)
	done := make(chan struct{})

	go func() {
		exec.Spin(context.Background())
		close(done)
	}()

	exec.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Spin did not return after Shutdown")
	}
	assert.False(t, exec.IsRunning())
	assert.False(t, exec.SpinOnce(10*time.Millisecond))
}

func TestExecutor_RecoversPanickingDelivery(t *testing.T) {
	bus := NewBus()
	node := bus.NewNode("n", Names{})
	exec := NewExecutor(nil)
	defer exec.Shutdown()
	exec.AddNode(node)

	calls := 0
	_, err := node.CreateSubscription("t", nil, 5, func(any) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	})
	require.NoError(t, err)

	bus.Inject("/t", 1)
	bus.Inject("/t", 2)
	assert.True(t, exec.SpinOnce(time.Second))
	assert.True(t, exec.SpinOnce(time.Second))
	assert.Equal(t, 2, calls)
}

func TestDecode(t *testing.T) {
	v, err := Decode([]byte(`{"data":"x"}`), reflect.TypeOf(chatter{}))
	require.NoError(t, err)
	assert.Equal(t, chatter{Data: "x"}, v)

	_, err = Decode([]byte(`not json`), reflect.TypeOf(&chatter{}))
	assert.Error(t, err)
}
