package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tally/internal/ir"
)

func TestLogicalClock_StartsAtZero(t *testing.T) {
	c := NewLogicalClock()
	assert.Equal(t, ir.Timestamp(0), c.Current(), "new clock should start at 0")
}

func TestLogicalClock_NewAt(t *testing.T) {
	c := NewLogicalClockAt(100)
	assert.Equal(t, ir.Timestamp(100), c.Current())
	assert.Equal(t, ir.Timestamp(101), c.Now())
}

func TestLogicalClock_Now_Incrementing(t *testing.T) {
	c := NewLogicalClock()

	// First call returns 1 (increments then returns)
	assert.Equal(t, ir.Timestamp(1), c.Now())
	assert.Equal(t, ir.Timestamp(2), c.Now())
	assert.Equal(t, ir.Timestamp(3), c.Now())

	assert.Equal(t, ir.Timestamp(3), c.Current())
}

func TestLogicalClock_ThreadSafe(t *testing.T) {
	c := NewLogicalClock()
	const goroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	stamps := make(chan ir.Timestamp, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				stamps <- c.Now()
			}
		}()
	}

	wg.Wait()
	close(stamps)

	seen := make(map[ir.Timestamp]bool)
	for ts := range stamps {
		assert.False(t, seen[ts], "timestamp %d generated twice", ts)
		seen[ts] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}

func TestMonotonicClock_NeverGoesBack(t *testing.T) {
	readings := []ir.Timestamp{10, 7, 12, 12, 3}
	i := 0
	c := NewMonotonicClock(func() ir.Timestamp {
		ts := readings[i]
		i++
		return ts
	})

	var got []ir.Timestamp
	for range readings {
		got = append(got, c.Now())
	}
	assert.Equal(t, []ir.Timestamp{10, 10, 12, 12, 12}, got)
}

func TestWallClock_NonZero(t *testing.T) {
	c := WallClock()
	first := c.Now()
	assert.NotZero(t, first)
	assert.GreaterOrEqual(t, c.Now(), first)
}
