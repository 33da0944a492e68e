package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadedExecutor runs the deliveries of all added nodes on the
// goroutine that calls Spin or SpinOnce.
type SingleThreadedExecutor struct {
	work chan func()
	done chan struct{}

	mu    sync.Mutex
	pumps map[Node]chan struct{}
	wg    sync.WaitGroup

	running  atomic.Bool
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewExecutor creates a running executor. A nil logger falls back to
// slog.Default.
func NewExecutor(logger *slog.Logger) *SingleThreadedExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &SingleThreadedExecutor{
		work:   make(chan func()),
		done:   make(chan struct{}),
		pumps:  make(map[Node]chan struct{}),
		logger: logger.With("component", "executor"),
	}
	e.running.Store(true)
	return e
}

// AddNode starts forwarding the node's deliveries. Adding a node twice is
// a no-op.
func (e *SingleThreadedExecutor) AddNode(n Node) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pumps[n]; ok || !e.running.Load() {
		return
	}
	stop := make(chan struct{})
	e.pumps[n] = stop

	e.wg.Add(1)
	go e.pump(n, stop)
}

// RemoveNode stops forwarding the node's deliveries.
func (e *SingleThreadedExecutor) RemoveNode(n Node) {
	e.mu.Lock()
	stop, ok := e.pumps[n]
	delete(e.pumps, n)
	e.mu.Unlock()

	if ok {
		close(stop)
	}
}

func (e *SingleThreadedExecutor) pump(n Node, stop chan struct{}) {
	defer e.wg.Done()
	in := n.Deliveries()
	for {
		select {
		case fn := <-in:
			select {
			case e.work <- fn:
			case <-stop:
				return
			case <-e.done:
				return
			}
		case <-stop:
			return
		case <-e.done:
			return
		}
	}
}

// SpinOnce runs at most one pending delivery, waiting up to timeout for
// one to arrive. It reports whether a delivery ran.
func (e *SingleThreadedExecutor) SpinOnce(timeout time.Duration) bool {
	if !e.running.Load() {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fn := <-e.work:
		e.run(fn)
		return true
	case <-timer.C:
		return false
	case <-e.done:
		return false
	}
}

// Spin runs deliveries until the executor is shut down or ctx ends.
func (e *SingleThreadedExecutor) Spin(ctx context.Context) {
	for e.running.Load() {
		select {
		case fn := <-e.work:
			e.run(fn)
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

func (e *SingleThreadedExecutor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Delivery panicked", "panic", r)
		}
	}()
	fn()
}

// IsRunning reports whether Shutdown has not been called yet.
func (e *SingleThreadedExecutor) IsRunning() bool {
	return e.running.Load()
}

// Shutdown stops spinning and waits for the node pumps to exit.
func (e *SingleThreadedExecutor) Shutdown() {
	e.stopOnce.Do(func() {
		e.running.Store(false)
		close(e.done)
	})

	e.mu.Lock()
	e.pumps = make(map[Node]chan struct{})
	e.mu.Unlock()
	e.wg.Wait()
}
