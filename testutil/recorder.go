package testutil

import (
	"sync"
	"time"
)

// Recorder collects values with the time each arrived. The zero value is
// ready to use.
type Recorder struct {
	mu     sync.Mutex
	values []any
	times  []time.Time
	notify chan struct{}
}

// Record appends v.
func (r *Recorder) Record(v any) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.times = append(r.times, time.Now())
	if r.notify != nil {
		close(r.notify)
		r.notify = nil
	}
	r.mu.Unlock()
}

// Handle records msg and returns nil. It fits func(any) error callbacks.
func (r *Recorder) Handle(msg any) error {
	r.Record(msg)
	return nil
}

// Tick records a nil value. It fits func() (bool, error) callbacks that
// should keep running.
func (r *Recorder) Tick() (bool, error) {
	r.Record(nil)
	return true, nil
}

// Len returns the number of recorded values.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Snapshot returns copies of the values and their arrival times.
func (r *Recorder) Snapshot() ([]any, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.values...), append([]time.Time(nil), r.times...)
}

// Gaps returns the time between consecutive arrivals.
func (r *Recorder) Gaps() []time.Duration {
	_, times := r.Snapshot()
	if len(times) < 2 {
		return nil
	}
	gaps := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]))
	}
	return gaps
}

// WaitFor blocks until at least n values are recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		if len(r.values) >= n {
			r.mu.Unlock()
			return true
		}
		if r.notify == nil {
			r.notify = make(chan struct{})
		}
		ch := r.notify
		r.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return r.Len() >= n
		}
	}
}
