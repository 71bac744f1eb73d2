package bakery

import (
	"context"
	"sync"
	"sync/atomic"
)

// Process binds a Lock to one process identity so it can be handed to code
// that expects a sync.Locker.
//
// A handle obtained from a Roster becomes unusable once its key leaves:
// every locking method panics from then on, because the identity may
// already belong to another key.
type Process struct {
	l  *Lock
	id int

	// busy is raised by the owner for the whole span from a lock request
	// to the matching unlock; detached is raised by Roster.Leave. Each side
	// stores its own flag before loading the other's, so a Leave and a
	// concurrent Lock cannot both proceed.
	busy     atomic.Bool
	detached atomic.Bool
}

var _ sync.Locker = (*Process)(nil)

// Process returns the handle of identity pid.
//
// panic if pid is out of range.
func (l *Lock) Process(pid int) *Process {
	l.check(pid)
	return &Process{l: l, id: pid}
}

// ID returns the process identity.
func (p *Process) ID() int { return p.id }

// Lock blocks until the process holds the lock.
func (p *Process) Lock() {
	p.enter()
	p.l.Lock(p.id)
}

// Unlock releases the lock.
func (p *Process) Unlock() {
	if p.detached.Load() {
		panic(errDetached)
	}
	p.l.Unlock(p.id)
	p.busy.Store(false)
}

// TryLock acquires the lock only if no peer has priority.
func (p *Process) TryLock() bool {
	p.enter()
	if !p.l.TryLock(p.id) {
		p.busy.Store(false)
		return false
	}
	return true
}

// LockContext blocks until the process holds the lock or ctx is done.
func (p *Process) LockContext(ctx context.Context) error {
	p.enter()
	if err := p.l.LockContext(ctx, p.id); err != nil {
		p.busy.Store(false)
		return err
	}
	return nil
}

// State returns the phase the process is in.
func (p *Process) State() State { return p.l.State(p.id) }

const errDetached = "bakery: use of process handle after its key left the roster"

func (p *Process) enter() {
	p.busy.Store(true)
	if p.detached.Load() {
		p.busy.Store(false)
		panic(errDetached)
	}
}

// detach marks the handle unusable. It fails, leaving the handle attached,
// while the owner is between a lock request and its unlock.
func (p *Process) detach() bool {
	p.detached.Store(true)
	if p.busy.Load() || p.State() != Idle {
		p.detached.Store(false)
		return false
	}
	return true
}
