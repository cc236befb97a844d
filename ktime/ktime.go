// Package ktime is the reference Timer collaborator spec.md §6 names:
// a tick() callback invoked in interrupt context and a monotonically
// increasing ticks() counter.
package ktime

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Source is the interface the kernel depends on. TickFn is invoked in
// (simulated) interrupt context on every tick.
type Source interface {
	Ticks() int64
	Run(tickFn func())
}

// Simulated is a software tick generator for tests and the kctl
// driver. In burst mode (Limiter == nil) it delivers ticks as fast as
// the caller drains them via Fire/FireN; in paced mode it throttles
// itself to a wall-clock rate with golang.org/x/time/rate so the
// MLFQS fairness scenario (spec.md §8 scenario 2) can be observed
// "over 1 second of ticks" in real time as well as in a fast unit
// test.
type Simulated struct {
	mu      sync.Mutex
	ticks   int64
	limiter *rate.Limiter
}

// NewSimulated returns a burst-mode tick source: Fire delivers ticks
// immediately.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// NewPaced returns a tick source throttled to hz ticks per second.
func NewPaced(hz int) *Simulated {
	return &Simulated{limiter: rate.NewLimiter(rate.Limit(hz), 1)}
}

// Ticks returns the number of ticks delivered so far.
func (s *Simulated) Ticks() int64 {
	return atomic.LoadInt64(&s.ticks)
}

// Run blocks delivering ticks to tickFn forever; callers run it in its
// own goroutine and stop it by abandoning the goroutine (there is no
// cancellation at the primitive level, matching spec.md §5's stance
// that sleep/ticks are not cancellable).
func (s *Simulated) Run(tickFn func()) {
	for {
		s.Fire(tickFn)
	}
}

// Fire delivers exactly one tick to tickFn, pacing itself if a
// limiter is configured.
func (s *Simulated) Fire(tickFn func()) {
	if s.limiter != nil {
		_ = s.limiter.Wait(context.Background())
	}
	atomic.AddInt64(&s.ticks, 1)
	tickFn()
}

// FireN delivers n ticks back to back, for tests that want to drive
// the scheduler through a fixed number of ticks without wall-clock
// pacing.
func (s *Simulated) FireN(n int, tickFn func()) {
	for i := 0; i < n; i++ {
		s.Fire(tickFn)
	}
}
