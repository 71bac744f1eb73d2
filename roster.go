package bakery

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

var (
	// ErrRosterFull is returned by Join when every identity is taken.
	ErrRosterFull = errors.New("bakery: roster is full")
	// ErrNotJoined is returned by Leave for a key that holds no identity.
	ErrNotJoined = errors.New("bakery: key has not joined")
	// ErrBusy is returned by Leave while the key's process is requesting
	// or holding the lock.
	ErrBusy = errors.New("bakery: process is requesting or holding the lock")
)

// Roster hands out the process identities of a Lock to callers that know
// themselves by some other key (a worker name, a connection, ...).
//
// The lock itself never touches the roster; identity bookkeeping uses
// ordinary concurrent-map and compare-and-swap machinery, while Lock and
// Unlock stay on plain reads and writes.
//
// Usage:
//
//	r := bakery.NewRoster[string](bakery.New(4))
//	p, err := r.Join("ingest")
//	if err != nil { ... }
//	p.Lock()
//	// critical section
//	p.Unlock()
//	_ = r.Leave("ingest")
type Roster[K comparable] struct {
	_       noCopy
	l       *Lock
	claimed []atomic.Bool
	m       pb.MapOf[K, *Process]
}

// NewRoster returns an empty roster over l.
func NewRoster[K comparable](l *Lock) *Roster[K] {
	return &Roster[K]{
		l:       l,
		claimed: make([]atomic.Bool, l.Len()),
	}
}

// Lock returns the lock the roster hands out identities for.
func (r *Roster[K]) Lock() *Lock {
	return r.l
}

// Join returns the process of k, claiming the lowest free identity if k
// has not joined yet.
func (r *Roster[K]) Join(k K) (*Process, error) {
	var err error
	p, _ := r.m.ProcessEntry(
		k,
		func(e *pb.EntryOf[K, *Process]) (*pb.EntryOf[K, *Process], *Process, bool) {
			if e != nil {
				return e, e.Value, true
			}
			pid, ok := r.claim()
			if !ok {
				err = ErrRosterFull
				return nil, nil, false
			}
			p := r.l.Process(pid)
			return &pb.EntryOf[K, *Process]{Value: p}, p, false
		},
	)
	if err != nil {
		return nil, fmt.Errorf("join %v: %w", k, err)
	}
	return p, nil
}

// Leave releases the identity held by k so another key can claim it.
// The handle Join returned for k panics on any further Lock, TryLock,
// LockContext or Unlock; join again to get a fresh one.
func (r *Roster[K]) Leave(k K) error {
	var err error
	_, _ = r.m.ProcessEntry(
		k,
		func(e *pb.EntryOf[K, *Process]) (*pb.EntryOf[K, *Process], *Process, bool) {
			if e == nil {
				err = ErrNotJoined
				return nil, nil, false
			}
			if !e.Value.detach() {
				err = ErrBusy
				return e, e.Value, true
			}
			r.claimed[e.Value.id].Store(false)
			return nil, nil, true
		},
	)
	if err != nil {
		return fmt.Errorf("leave %v: %w", k, err)
	}
	return nil
}

// Load returns the process of k, if k has joined.
func (r *Roster[K]) Load(k K) (*Process, bool) {
	return r.m.Load(k)
}

// Members returns the number of keys currently holding an identity.
func (r *Roster[K]) Members() int {
	n := 0
	for i := range r.claimed {
		if r.claimed[i].Load() {
			n++
		}
	}
	return n
}

// Range calls f for every joined key and its process until f returns false.
func (r *Roster[K]) Range(f func(k K, p *Process) bool) {
	r.m.Range(f)
}

func (r *Roster[K]) claim() (int, bool) {
	for i := range r.claimed {
		if r.claimed[i].CompareAndSwap(false, true) {
			return i, true
		}
	}
	return 0, false
}
