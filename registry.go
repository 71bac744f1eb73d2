package bakery

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/bakery/internal/opt"
)

// State is the phase a process is in with respect to the lock.
type State uint32

const (
	// Idle: not requesting and not holding the lock.
	Idle State = iota
	// Choosing: drawing a ticket; peers must wait for the draw to finish.
	Choosing
	// Waiting: holding a ticket, waiting for every peer with priority.
	Waiting
	// Critical: holding the lock.
	Critical
)

var stateNames = [...]string{
	Idle:     "idle",
	Choosing: "choosing",
	Waiting:  "waiting",
	Critical: "critical",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// slot is the registry entry of one process. Every field has exactly one
// writer, the owning process; any process may read it.
type slot struct {
	choosing atomic.Bool
	state    atomic.Uint32
	number   atomic.Uint64
	_        [(opt.CacheLineSize_ - unsafe.Sizeof(struct {
		choosing atomic.Bool
		state    atomic.Uint32
		number   atomic.Uint64
	}{})%opt.CacheLineSize_) % opt.CacheLineSize_ * opt.PaddingMult_]byte
}

// registry is the shared ticket table: one choosing flag and one ticket
// number per process, all starting at (false, 0).
//
// It does no locking of its own. All accesses are individual atomic loads
// and stores, which Go orders sequentially consistently; that is at least
// the acquire/release ordering the bakery protocol needs.
type registry struct {
	slots []slot
}

func newRegistry(n int) registry {
	return registry{slots: make([]slot, n)}
}

func (r *registry) len() int {
	return len(r.slots)
}

func (r *registry) choosingAt(j int) bool {
	return r.slots[j].choosing.Load()
}

func (r *registry) numberAt(j int) uint64 {
	return r.slots[j].number.Load()
}

func (r *registry) stateAt(j int) State {
	return State(r.slots[j].state.Load())
}

func (r *registry) setChoosing(pid int, b bool) {
	r.slots[pid].choosing.Store(b)
}

func (r *registry) setNumber(pid int, t uint64) {
	r.slots[pid].number.Store(t)
}

func (r *registry) setState(pid int, s State) {
	r.slots[pid].state.Store(uint32(s))
}

// maxNumber loads every ticket one at a time and returns the largest.
// Slots may change while the scan is in progress; the choosing flag is
// what keeps such a torn view safe.
func (r *registry) maxNumber() uint64 {
	var m uint64
	for i := range r.slots {
		if t := r.slots[i].number.Load(); t > m {
			m = t
		}
	}
	return m
}

// numbers returns the ticket of every process, read slot by slot.
func (r *registry) numbers() []uint64 {
	out := make([]uint64, len(r.slots))
	for i := range r.slots {
		out[i] = r.slots[i].number.Load()
	}
	return out
}
