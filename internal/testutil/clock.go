package testutil

import (
	"sync"

	"github.com/roach88/tally/internal/ir"
)

// DeterministicClock provides a thread-safe logical clock for tests.
//
// Unlike engine.LogicalClock, DeterministicClock can be reset and moved
// to an arbitrary time, including backwards, to exercise stamping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	now ir.Timestamp
}

// NewDeterministicClock creates a new deterministic clock starting at 0.
//
// The first call to Now() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now advances the clock by one and returns the new time.
func (c *DeterministicClock) Now() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Current returns the current time without advancing.
func (c *DeterministicClock) Current() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock so the next Now returns ts+1.
func (c *DeterministicClock) Set(ts ir.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// Reset resets the clock to 0.
//
// Used for test reuse. After Reset(), the next call to Now() returns 1.
func (c *DeterministicClock) Reset() {
	c.Set(0)
}
