// Package bakery implements Lamport's bakery algorithm: a fair mutual
// exclusion lock for a fixed set of N processes that needs nothing stronger
// than per-variable atomic reads and writes. No compare-and-swap, no
// fetch-and-add and no runtime semaphore is involved in Lock or Unlock.
//
// Each process is identified by an integer in [0, N). To enter, a process
// takes a ticket one higher than every ticket it can see, then waits for
// every peer holding a smaller ticket (or an equal ticket and a smaller
// identity). Processes are therefore admitted in ticket order, which makes
// the lock first-come-first-served and starvation-free.
//
// Usage:
//
//	l := bakery.New(3)
//	go func() {
//		l.Lock(1)
//		// critical section of process 1
//		l.Unlock(1)
//	}()
package bakery

import (
	"context"
	"fmt"
)

// Lock is a bakery lock for a fixed number of processes.
//
// A Lock must be created with New and must not be copied after first use.
// Each process identity must be driven by at most one goroutine at a time.
//
// Waiting is a polling loop over the peers' registry slots; see Backoff
// for how the time between polls is spent.
type Lock struct {
	_   noCopy
	reg registry
	cfg Config
}

// New returns a Lock for n processes with identities 0 through n-1.
//
// panic if n <= 0.
func New(n int, options ...func(*Config)) *Lock {
	if n <= 0 {
		panic("bakery: number of processes must be positive")
	}
	cfg := defaultConfig()
	for _, o := range options {
		o(&cfg)
	}
	return &Lock{reg: newRegistry(n), cfg: cfg}
}

// Len returns the number of processes the lock was created for.
func (l *Lock) Len() int {
	return l.reg.len()
}

// Lock blocks until process pid holds the lock.
//
// panic if pid is out of range, or if pid is already requesting or
// holding the lock.
func (l *Lock) Lock(pid int) {
	l.check(pid)
	l.announce(pid)
	t := l.draw()
	l.take(pid, t)
	l.await(pid, t, nil)
	l.admit(pid)
}

// LockContext is like Lock but gives up when ctx is done.
//
// If ctx ends while pid is waiting for its turn, the ticket is withdrawn,
// the slot returns to Idle and ctx.Err() is returned. Withdrawing never
// compromises mutual exclusion, but a process that keeps retrying after a
// timeout rejoins at the back of the line, so the first-come-first-served
// bound only holds per attempt.
func (l *Lock) LockContext(ctx context.Context, pid int) error {
	l.check(pid)
	if err := ctx.Err(); err != nil {
		return err
	}
	l.announce(pid)
	t := l.draw()
	l.take(pid, t)
	if !l.await(pid, t, ctx.Done()) {
		l.withdraw(pid)
		return ctx.Err()
	}
	l.admit(pid)
	return nil
}

// TryLock takes a ticket and makes a single pass over the peers. If no
// peer has priority, pid holds the lock and TryLock returns true. Otherwise
// the ticket is withdrawn and TryLock returns false.
func (l *Lock) TryLock(pid int) bool {
	l.check(pid)
	l.announce(pid)
	t := l.draw()
	l.take(pid, t)
	if !l.await(pid, t, closedChan) {
		l.withdraw(pid)
		return false
	}
	l.admit(pid)
	return true
}

// Unlock releases the lock held by pid by resetting its ticket to 0.
//
// panic if pid is out of range. If pid does not hold the lock, Unlock
// panics unless the lock was built with WithStrictUnlock(false), in which
// case it does nothing.
func (l *Lock) Unlock(pid int) {
	l.check(pid)
	if l.reg.stateAt(pid) != Critical {
		if l.cfg.strictUnlock {
			panic("bakery: unlock of unlocked process")
		}
		return
	}
	l.reg.setNumber(pid, 0)
	l.reg.setState(pid, Idle)
}

// Ticket returns the current ticket of pid; 0 means pid is idle.
func (l *Lock) Ticket(pid int) uint64 {
	l.check(pid)
	return l.reg.numberAt(pid)
}

// Tickets returns the ticket of every process, indexed by identity.
// The slots are read one at a time, so the result is not a snapshot.
func (l *Lock) Tickets() []uint64 {
	return l.reg.numbers()
}

// Choosing reports whether pid is in the middle of drawing a ticket.
func (l *Lock) Choosing(pid int) bool {
	l.check(pid)
	return l.reg.choosingAt(pid)
}

// State returns the phase pid is currently in.
func (l *Lock) State(pid int) State {
	l.check(pid)
	return l.reg.stateAt(pid)
}

// ============================================================================
// Protocol phases
// ============================================================================

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (l *Lock) check(pid int) {
	if uint(pid) >= uint(l.reg.len()) {
		panic(fmt.Sprintf("bakery: process id %d out of range [0, %d)", pid, l.reg.len()))
	}
}

// announce raises the choosing flag of pid.
func (l *Lock) announce(pid int) {
	if l.reg.stateAt(pid) != Idle {
		panic("bakery: lock of process already requesting or holding the lock")
	}
	l.reg.setState(pid, Choosing)
	l.reg.setChoosing(pid, true)
}

// draw returns one more than the largest ticket currently visible.
func (l *Lock) draw() uint64 {
	return l.reg.maxNumber() + 1
}

// take publishes ticket t for pid and then lowers its choosing flag.
func (l *Lock) take(pid int, t uint64) {
	l.reg.setNumber(pid, t)
	l.reg.setChoosing(pid, false)
	l.reg.setState(pid, Waiting)
}

// await waits, peer by peer in ascending identity order, until no peer is
// choosing and no peer holds a ticket that precedes (t, pid).
// It returns false without finishing if done is closed first.
func (l *Lock) await(pid int, t uint64, done <-chan struct{}) bool {
	var spins int
	for j := 0; j < l.reg.len(); j++ {
		if j == pid {
			continue
		}
		for l.reg.choosingAt(j) {
			if !l.pause(&spins, done) {
				return false
			}
		}
		for {
			tj := l.reg.numberAt(j)
			if tj == 0 || !precedes(tj, j, t, pid) {
				break
			}
			if !l.pause(&spins, done) {
				return false
			}
		}
	}
	return true
}

func (l *Lock) pause(spins *int, done <-chan struct{}) bool {
	if done != nil {
		select {
		case <-done:
			return false
		default:
		}
	}
	l.cfg.backoff.wait(spins)
	return true
}

func (l *Lock) admit(pid int) {
	l.reg.setState(pid, Critical)
}

// withdraw abandons a request: the mirror image of Unlock for a process
// that never entered.
func (l *Lock) withdraw(pid int) {
	l.reg.setNumber(pid, 0)
	l.reg.setChoosing(pid, false)
	l.reg.setState(pid, Idle)
}

// precedes reports whether ticket (ta, a) is served before (tb, b):
// smaller ticket first, smaller identity on a tie.
//
//go:nosplit
func precedes(ta uint64, a int, tb uint64, b int) bool {
	return ta < tb || (ta == tb && a < b)
}
