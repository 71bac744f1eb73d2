//go:build !race

package workload

import (
	"sync"
	"testing"
	"time"
)

// The increments here race on purpose.
func TestCounter_DetectsOverlap(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	for range 2 {
		go func() {
			defer wg.Done()
			<-start
			c.Increment(100 * time.Millisecond)
		}()
	}
	close(start)
	wg.Wait()
	if c.Overlaps() == 0 {
		t.Fatal("unguarded increments did not overlap")
	}
	if c.Value() != 1 {
		t.Fatalf("value = %d, want 1 (one update lost)", c.Value())
	}
}
