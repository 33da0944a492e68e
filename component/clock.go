package component

import (
	"time"
)

// Stamp is a wall-clock time split into seconds and nanoseconds.
type Stamp struct {
	Sec     int64  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// Time converts the stamp back to a time.Time.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Sec, int64(s.Nanosec))
}

// Clock is the time source injected into clock slots.
type Clock struct {
	origin time.Time
	now    func() time.Time
}

// NewClock creates a clock reading the system time.
func NewClock() *Clock {
	return &Clock{origin: time.Now(), now: time.Now}
}

// Now returns the monotonic milliseconds elapsed since the clock was
// created.
func (c *Clock) Now() float64 {
	return float64(c.now().Sub(c.origin)) / float64(time.Millisecond)
}

// TimeNow returns the current wall-clock time as a Stamp.
func (c *Clock) TimeNow() Stamp {
	t := c.now()
	return Stamp{Sec: t.Unix(), Nanosec: uint32(t.Nanosecond())}
}
