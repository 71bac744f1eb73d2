package bakery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRoster_JoinLeave(t *testing.T) {
	r := NewRoster[string](New(2))

	a, err := r.Join("a")
	if err != nil {
		t.Fatal(err)
	}
	again, err := r.Join("a")
	if err != nil || again != a {
		t.Fatalf("second Join(a) = %v, %v; want the same process", again, err)
	}
	b, err := r.Join("b")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() == b.ID() {
		t.Fatalf("a and b share identity %d", a.ID())
	}
	if _, err := r.Join("c"); !errors.Is(err, ErrRosterFull) {
		t.Fatalf("Join(c) err = %v, want ErrRosterFull", err)
	}
	if r.Members() != 2 {
		t.Fatalf("Members = %d", r.Members())
	}

	b.Lock()
	if err := r.Leave("b"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Leave while holding = %v, want ErrBusy", err)
	}
	b.Unlock()
	if err := r.Leave("b"); err != nil {
		t.Fatal(err)
	}
	if err := r.Leave("b"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("second Leave = %v, want ErrNotJoined", err)
	}
	if _, ok := r.Load("b"); ok {
		t.Fatal("b still loaded after Leave")
	}

	c, err := r.Join("c")
	if err != nil {
		t.Fatal(err)
	}
	if c.ID() != b.ID() {
		t.Fatalf("c got identity %d, want freed identity %d", c.ID(), b.ID())
	}
	if r.Lock().Len() != 2 {
		t.Fatal("roster reports the wrong lock")
	}
}

func TestRoster_ConcurrentJoin(t *testing.T) {
	const n = 16
	r := NewRoster[int](New(n))
	var wg sync.WaitGroup
	wg.Add(n)
	ids := make([]int, n)
	for i := range n {
		go func() {
			defer wg.Done()
			p, err := r.Join(i)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = p.ID()
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i, id := range ids {
		if seen[id] {
			t.Fatalf("identity %d handed out twice (key %d)", id, i)
		}
		seen[id] = true
	}

	count := 0
	r.Range(func(k int, p *Process) bool {
		if ids[k] != p.ID() {
			t.Errorf("key %d: range id %d, join id %d", k, p.ID(), ids[k])
		}
		count++
		return true
	})
	if count != n {
		t.Fatalf("Range visited %d keys, want %d", count, n)
	}
}

func TestRoster_CounterThroughHandles(t *testing.T) {
	const n, k = 5, 100
	r := NewRoster[string](New(n))
	var wg sync.WaitGroup
	wg.Add(n)
	counter := 0
	for i := range n {
		go func() {
			defer wg.Done()
			p, err := r.Join(fmt.Sprintf("worker-%d", i))
			if err != nil {
				t.Error(err)
				return
			}
			for range k {
				p.Lock()
				counter++
				p.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != n*k {
		t.Fatalf("counter = %d, want %d", counter, n*k)
	}
}

func TestRoster_StaleHandleAfterLeave(t *testing.T) {
	r := NewRoster[string](New(1))
	a, err := r.Join("a")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Leave("a"); err != nil {
		t.Fatal(err)
	}
	b, err := r.Join("b")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() != b.ID() {
		t.Fatalf("b got identity %d, want reused identity %d", b.ID(), a.ID())
	}

	mustPanic(t, "Lock after Leave", func() { a.Lock() })
	mustPanic(t, "TryLock after Leave", func() { a.TryLock() })
	mustPanic(t, "LockContext after Leave", func() { _ = a.LockContext(context.Background()) })

	b.Lock()
	mustPanic(t, "Unlock after Leave", func() { a.Unlock() })
	if b.State() != Critical || r.Lock().Ticket(b.ID()) == 0 {
		t.Fatalf("stale handle disturbed the new owner: state=%v ticket=%d", b.State(), r.Lock().Ticket(b.ID()))
	}
	b.Unlock()
}

// Leave racing against an owner that keeps locking must either refuse with
// ErrBusy or win cleanly; once it wins, the owner can no longer touch the slot.
func TestRoster_LeaveRacesOwner(t *testing.T) {
	r := NewRoster[string](New(2))
	a, err := r.Join("a")
	if err != nil {
		t.Fatal(err)
	}

	var rounds atomic.Int64
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		defer func() { _ = recover() }()
		for {
			a.Lock()
			rounds.Add(1)
			a.Unlock()
			time.Sleep(10 * time.Microsecond)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for rounds.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("owner never locked")
		}
		time.Sleep(time.Millisecond)
	}
	for {
		err := r.Leave("a")
		if err == nil {
			break
		}
		if !errors.Is(err, ErrBusy) {
			t.Fatalf("Leave = %v, want nil or ErrBusy", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("Leave never succeeded")
		}
	}

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("owner kept running after Leave")
	}
	if a.State() != Idle || r.Lock().Ticket(a.ID()) != 0 {
		t.Fatalf("slot left busy: state=%v ticket=%d", a.State(), r.Lock().Ticket(a.ID()))
	}

	b, err := r.Join("b")
	if err != nil {
		t.Fatal(err)
	}
	b.Lock()
	b.Unlock()
}
