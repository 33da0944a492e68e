package watchdog

import (
	stderrors "errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/metric"
	"github.com/c360/nodekit/testutil"
	"github.com/c360/nodekit/transport"
)

type scan struct {
	Ranges []float64
}

func spin(t *testing.T, node transport.Node) *transport.SingleThreadedExecutor {
	t.Helper()
	exec := transport.NewExecutor(nil)
	exec.AddNode(node)
	t.Cleanup(exec.Shutdown)
	return exec
}

func TestTimeoutFiresRepeatedly(t *testing.T) {
	bus := transport.NewBus()
	node := bus.NewNode("lidar", transport.Names{})
	defer node.Close()

	var rec testutil.Recorder
	b := New("/scan", reflect.TypeOf(&scan{}), rec.Handle, WithTimeout(500*time.Millisecond))
	require.NoError(t, b.Start(node))

	time.Sleep(1200 * time.Millisecond)
	require.NoError(t, b.Stop())
	testutil.WaitClosed(t, b.Done(), time.Second, "watchdog")

	msgs, _ := rec.Snapshot()
	require.GreaterOrEqual(t, len(msgs), 2)
	for _, m := range msgs {
		assert.Nil(t, m)
	}
	for _, gap := range rec.Gaps() {
		assert.GreaterOrEqual(t, gap, 500*time.Millisecond)
	}
}

func TestMessagesResetTimeout(t *testing.T) {
	bus := transport.NewBus()
	node := bus.NewNode("lidar", transport.Names{})
	defer node.Close()
	exec := spin(t, node)

	var rec testutil.Recorder
	b := New("/scan", reflect.TypeOf(&scan{}), rec.Handle, WithTimeout(300*time.Millisecond))
	require.NoError(t, b.Start(node))
	defer b.Stop()

	deadline := time.Now().Add(700 * time.Millisecond)
	for time.Now().Before(deadline) {
		bus.Inject("/scan", &scan{Ranges: []float64{1}})
		exec.SpinOnce(10 * time.Millisecond)
		time.Sleep(90 * time.Millisecond)
	}

	msgs, _ := rec.Snapshot()
	require.NotEmpty(t, msgs)
	for _, m := range msgs {
		assert.NotNil(t, m, "no timeout while messages keep arriving")
	}
}

func TestPassiveBindingHasNoWatcher(t *testing.T) {
	bus := transport.NewBus()
	node := bus.NewNode("lidar", transport.Names{})
	defer node.Close()
	exec := spin(t, node)

	var rec testutil.Recorder
	b := New("/scan", reflect.TypeOf(&scan{}), rec.Handle)
	require.NoError(t, b.Start(node))
	assert.Equal(t, "/scan", b.Subscription().Topic())

	bus.Inject("/scan", &scan{})
	require.True(t, exec.SpinOnce(time.Second))
	time.Sleep(50 * time.Millisecond)

	msgs, _ := rec.Snapshot()
	require.Len(t, msgs, 1)
	assert.IsType(t, &scan{}, msgs[0])

	require.NoError(t, b.Stop())
	testutil.WaitClosed(t, b.Done(), 10*time.Millisecond, "passive binding")
}

func TestHandlerFailuresAreCounted(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	m := reg.CoreMetrics()

	bus := transport.NewBus()
	node := bus.NewNode("lidar", transport.Names{})
	defer node.Close()

	var n atomic.Int32
	b := New("/scan", nil, func(msg any) error {
		if n.Add(1) == 1 {
			return stderrors.New("no fix")
		}
		panic("bad scan")
	}, WithTimeout(50*time.Millisecond), WithMetrics(m))
	require.NoError(t, b.Start(node))

	require.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Stop())
	<-b.Done()

	assert.GreaterOrEqual(t, promtest.ToFloat64(m.InvocationErrors.WithLabelValues("subscribe")), 2.0)
	assert.GreaterOrEqual(t, promtest.ToFloat64(m.WatchdogTimeouts.WithLabelValues("/scan")), 2.0)
}

func TestClockRegressionDoesNotFire(t *testing.T) {
	bus := transport.NewBus()
	node := bus.NewNode("lidar", transport.Names{})
	defer node.Close()

	base := time.Now()
	var calls atomic.Int32
	now := func() time.Time {
		// First read at Start, then the clock jumps back an hour.
		if calls.Add(1) == 1 {
			return base
		}
		return base.Add(-time.Hour)
	}

	var fired atomic.Int32
	b := New("/scan", nil, func(any) error {
		fired.Add(1)
		return nil
	}, WithTimeout(20*time.Millisecond), WithTimeSource(now))
	require.NoError(t, b.Start(node))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Stop())
	<-b.Done()
	assert.Zero(t, fired.Load())
}

func TestStartValidation(t *testing.T) {
	bus := transport.NewBus()
	node := bus.NewNode("lidar", transport.Names{})
	defer node.Close()

	b := New("/scan", nil, nil)
	assert.True(t, errors.IsInvalid(b.Start(node)))

	ok := New("/scan", nil, func(any) error { return nil })
	require.NoError(t, ok.Start(node))
	assert.ErrorIs(t, ok.Start(node), errors.ErrAlreadyStarted)
	require.NoError(t, ok.Stop())
}

func TestStopBeforeStart(t *testing.T) {
	b := New("/scan", nil, func(any) error { return nil }, WithTimeout(time.Second))
	require.NoError(t, b.Stop())
	<-b.Done()
}
