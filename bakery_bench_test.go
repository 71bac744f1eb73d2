package bakery

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func BenchmarkBakeryUncontended(b *testing.B) {
	l := New(1)
	b.ReportAllocs()
	for b.Loop() {
		l.Lock(0)
		l.Unlock(0)
	}
}

func BenchmarkBakeryAdaptive(b *testing.B) {
	benchmarkBakery(b, BackoffAdaptive)
}

func BenchmarkBakeryYield(b *testing.B) {
	benchmarkBakery(b, BackoffYield)
}

// RunParallel starts GOMAXPROCS goroutines; each takes its own identity.
func benchmarkBakery(b *testing.B, backoff Backoff) {
	b.ReportAllocs()
	l := New(runtime.GOMAXPROCS(0), WithBackoff(backoff))
	var next atomic.Int64
	shared := 0
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		pid := int(next.Add(1) - 1)
		for pb.Next() {
			l.Lock(pid)
			shared++
			l.Unlock(pid)
		}
	})
	_ = shared
}

func BenchmarkMutexBaseline(b *testing.B) {
	b.ReportAllocs()
	var mu sync.Mutex
	shared := 0
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mu.Lock()
			shared++
			mu.Unlock()
		}
	})
	_ = shared
}
