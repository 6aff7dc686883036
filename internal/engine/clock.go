package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/tally/internal/ir"
)

// Clock supplies the timestamps records are stamped with.
// Timestamps never decide ordering; ids do.
type Clock interface {
	Now() ir.Timestamp
}

// LogicalClock is a monotonic sequence clock.
// Every call to Now returns a strictly larger value, so runs that make the
// same calls stamp the same timestamps.
//
// Thread-safety: LogicalClock is safe for concurrent use (atomic operations).
type LogicalClock struct {
	seq atomic.Uint64
}

// NewLogicalClock creates a clock starting at 0. The first Now returns 1.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// NewLogicalClockAt creates a clock resuming after start.
func NewLogicalClockAt(start uint64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Now increments the clock and returns the new value.
func (c *LogicalClock) Now() ir.Timestamp {
	return ir.Timestamp(c.seq.Add(1))
}

// Current returns the last value handed out without incrementing.
func (c *LogicalClock) Current() ir.Timestamp {
	return ir.Timestamp(c.seq.Load())
}

// MonotonicClock wraps a time source so it never goes backwards within
// the process. A source reading earlier than a previous call yields the
// previous value again.
type MonotonicClock struct {
	mu     sync.Mutex
	source func() ir.Timestamp
	last   ir.Timestamp
}

// NewMonotonicClock wraps source.
func NewMonotonicClock(source func() ir.Timestamp) *MonotonicClock {
	return &MonotonicClock{source: source}
}

// WallClock returns a monotonic clock over unix seconds.
func WallClock() *MonotonicClock {
	return NewMonotonicClock(func() ir.Timestamp {
		return ir.Timestamp(time.Now().Unix())
	})
}

// Now returns max(source(), last returned value).
func (c *MonotonicClock) Now() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.source(); t > c.last {
		c.last = t
	}
	return c.last
}
