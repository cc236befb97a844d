package kernel

import "sort"

// Semaphore is a non-negative counter with a FIFO-of-priorities wait
// list, spec.md §3/§4.2.
type Semaphore struct {
	k       *Kernel
	initial int
	value   int
	waiters []*Thread

	// lifetime counters for the testable property in spec.md §8:
	// "sum of semaphore value + |waiters| equals initial value + #ups
	// - #downs."
	ups   int64
	downs int64
}

// NewSemaphore creates a semaphore with the given initial value. The
// Kernel is bound from the k argument of the first Down, TryDown or Up
// call, so a
// Semaphore can be constructed before a Kernel exists (as
// newThread does for the orchestration semaphores).
func NewSemaphore(value int) *Semaphore {
	return &Semaphore{value: value, initial: value}
}

func (s *Semaphore) bind(k *Kernel) {
	if s.k == nil {
		s.k = k
	}
}

// Down blocks until the semaphore's value is positive, then
// decrements it. Must not be called from interrupt context.
func (s *Semaphore) Down(k *Kernel) {
	s.bind(k)
	g := k.DisableIntr()
	me := k.current
	for s.value == 0 {
		me.queue = queueWait
		s.waiters = append(s.waiters, me)
		k.Block(g)
		// Block returns once some Up() call has Unblock'd us; loop to
		// recheck value, since a racing TryDown by another waiter on
		// the same tick could have taken it first (defensive; in this
		// single-CPU model Up always hands the slot to the thread it
		// wakes, but the loop form matches the canonical semaphore
		// idiom and protects against future policy changes).
	}
	s.value--
	s.downs++
	g.EnableIntr()
}

// TryDown is safe from interrupt context: if value>0, decrements and
// returns true, else returns false without blocking.
func (s *Semaphore) TryDown(k *Kernel) bool {
	s.bind(k)
	g := k.DisableIntr()
	defer g.EnableIntr()
	if s.value == 0 {
		return false
	}
	s.value--
	s.downs++
	return true
}

// Up wakes the highest-priority waiter (if any) and increments the
// value. Safe from interrupt context; fromInterrupt controls whether
// a resulting preemption happens immediately or is deferred to
// interrupt return.
func (s *Semaphore) Up(k *Kernel, fromInterrupt bool) {
	s.bind(k)
	g := k.DisableIntr()
	s.ups++
	var woken *Thread
	if len(s.waiters) > 0 {
		sort.SliceStable(s.waiters, func(i, j int) bool {
			return s.waiters[i].effPriority > s.waiters[j].effPriority
		})
		woken = s.waiters[0]
		s.waiters = s.waiters[1:]
		woken.queue = queueNone
		k.unblockLocked(woken)
	}
	s.value++
	if woken != nil {
		k.maybePreemptLocked(woken, fromInterrupt)
	}
	g.EnableIntr()
}

// Waiters returns the number of threads currently blocked on the
// semaphore, used by tests asserting spec.md §8's conservation law.
func (s *Semaphore) Waiters() int {
	g := s.k.DisableIntr()
	defer g.EnableIntr()
	return len(s.waiters)
}

// Value returns the current counter value.
func (s *Semaphore) Value() int {
	g := s.k.DisableIntr()
	defer g.EnableIntr()
	return s.value
}

// Lifetime returns the semaphore's initial value and its total number
// of completed ups and downs, for asserting spec.md §8's conservation
// law: value()+Waiters() == initial + ups - downs at any point.
func (s *Semaphore) Lifetime() (initial int, ups, downs int64) {
	g := s.k.DisableIntr()
	defer g.EnableIntr()
	return s.initial, s.ups, s.downs
}
