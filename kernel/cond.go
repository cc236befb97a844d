package kernel

// Cond is a Mesa-style condition variable, spec.md §3/§4.2: a wait
// list of per-waiter semaphores, each initialized to 0.
type Cond struct {
	waiters []*condWaiter
}

type condWaiter struct {
	sem *Semaphore
	t   *Thread
}

// NewCond creates an empty condition variable.
func NewCond() *Cond { return &Cond{} }

// Wait atomically releases lk and blocks the calling thread on cv,
// then reacquires lk before returning.
func (cv *Cond) Wait(k *Kernel, lk *Lock) {
	w := &condWaiter{sem: NewSemaphore(0), t: k.Current()}
	cv.waiters = append(cv.waiters, w)
	lk.Release(k)
	w.sem.Down(k)
	lk.Acquire(k)
}

// Signal wakes the waiter whose blocked thread has the highest
// effective priority *at the moment of signaling*, not at the moment
// it called Wait — spec.md §5: "signal wakes the waiter whose blocked
// thread has the highest effective priority at the moment of
// signaling (not at the moment of wait)."
func (cv *Cond) Signal(k *Kernel, lk *Lock) {
	g := k.DisableIntr()
	if len(cv.waiters) == 0 {
		g.EnableIntr()
		return
	}
	best := 0
	for i, w := range cv.waiters {
		if w.t.effPriority > cv.waiters[best].t.effPriority {
			best = i
		}
	}
	w := cv.waiters[best]
	cv.waiters = append(cv.waiters[:best], cv.waiters[best+1:]...)
	g.EnableIntr()
	w.sem.Up(k, false)
}

// Broadcast wakes every waiter, highest priority first.
func (cv *Cond) Broadcast(k *Kernel, lk *Lock) {
	for len(cv.waiters) > 0 {
		cv.Signal(k, lk)
	}
}
