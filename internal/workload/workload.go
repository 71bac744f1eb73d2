// Package workload drives a lock with a fixed set of workers that each
// repeatedly acquire it, bump a shared counter, release it, and idle.
// It is the exercise harness behind the bakery command and the
// lost-update tests.
package workload

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
)

// Locker is a lock keyed by process identity, such as *bakery.Lock.
type Locker interface {
	Lock(pid int)
	Unlock(pid int)
}

// Options configures Run.
type Options struct {
	// Processes is the number of workers; worker i uses identity i.
	Processes int
	// Iterations is how many times each worker enters the critical section.
	Iterations int
	// Window is the upper bound of the random pause between reading and
	// writing the counter.
	Window time.Duration
	// Hold is the upper bound of the random extra time spent inside the
	// critical section after the increment.
	Hold time.Duration
	// Think is the upper bound of the random time spent outside the
	// critical section between iterations.
	Think time.Duration
	// Logger receives the per-iteration trace: lock request, critical
	// section enter, increment and leave, all at info level. Nil disables
	// logging.
	Logger pslog.Logger
}

// Report summarizes a run.
type Report struct {
	Final    int
	Expected int
	Overlaps int64
	Elapsed  time.Duration
	MaxWait  time.Duration
}

// OK reports whether the counter matches the expected value and no
// critical sections overlapped.
func (r Report) OK() bool {
	return r.Final == r.Expected && r.Overlaps == 0
}

var errBadOptions = errors.New("workload: processes and iterations must be positive")

// Run executes the workload against l and waits for every worker.
//
// Cancelling ctx stops workers between iterations; a worker blocked inside
// l.Lock is not interrupted. Run returns ctx's error in that case together
// with the partial report.
func Run(ctx context.Context, l Locker, opts Options) (Report, error) {
	if opts.Processes <= 0 || opts.Iterations <= 0 {
		return Report{}, errBadOptions
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	var (
		counter Counter
		mu      sync.Mutex
		maxWait time.Duration
	)
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for pid := range opts.Processes {
		g.Go(func() error {
			wlog := logger.With("pid", pid)
			for i := range opts.Iterations {
				if err := ctx.Err(); err != nil {
					return err
				}
				wlog.Info("workload.lock.request", "iteration", i)
				requested := time.Now()
				l.Lock(pid)
				waited := time.Since(requested)
				wlog.Info("workload.critical.enter", "iteration", i, "wait", waited)

				v := counter.Increment(jitter(opts.Window))
				wlog.Info("workload.critical.increment", "iteration", i, "count", v)
				if d := jitter(opts.Hold); d > 0 {
					time.Sleep(d)
				}
				wlog.Info("workload.critical.leave", "iteration", i)
				l.Unlock(pid)

				mu.Lock()
				maxWait = max(maxWait, waited)
				mu.Unlock()

				if d := jitter(opts.Think); d > 0 {
					time.Sleep(d)
				}
			}
			wlog.Debug("workload.worker.done")
			return nil
		})
	}
	err := g.Wait()

	report := Report{
		Final:    counter.Value(),
		Expected: opts.Processes * opts.Iterations,
		Overlaps: counter.Overlaps(),
		Elapsed:  time.Since(start),
		MaxWait:  maxWait,
	}
	logger.Info("workload.finished",
		"final", report.Final,
		"expected", report.Expected,
		"overlaps", report.Overlaps,
		"elapsed", report.Elapsed,
	)
	return report, err
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
