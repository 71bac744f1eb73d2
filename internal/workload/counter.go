package workload

import (
	"sync/atomic"
	"time"
)

// Counter is a deliberately unsynchronized shared integer. Increment reads
// the value, optionally sleeps, and writes value+1, so two callers that are
// not mutually excluded lose updates. It also counts how often two callers
// were inside Increment at the same time.
type Counter struct {
	value    int
	inside   atomic.Int32
	overlaps atomic.Int64
}

// Increment adds one to the counter, sleeping for window between the read
// and the write, and returns the new value.
func (c *Counter) Increment(window time.Duration) int {
	if c.inside.Add(1) != 1 {
		c.overlaps.Add(1)
	}
	v := c.value
	if window > 0 {
		time.Sleep(window)
	}
	c.value = v + 1
	c.inside.Add(-1)
	return v + 1
}

// Value returns the current count. Call it only after every worker is done
// or while holding the lock that guards the counter.
func (c *Counter) Value() int {
	return c.value
}

// Overlaps returns how many times Increment was entered while another
// Increment was still running.
func (c *Counter) Overlaps() int64 {
	return c.overlaps.Load()
}
