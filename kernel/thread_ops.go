package kernel

import (
	"errors"
	"runtime"

	"nanokernel.dev/nanokernel/internal/klog"
	"nanokernel.dev/nanokernel/kernel/sched"
)

// ErrNoThread is returned by Create on allocation failure, spec.md
// §4.1: "On allocation failure returns ERROR."
var ErrNoThread = errors.New("kernel: thread allocation failed")

// Create allocates a new thread, seeds it to run entry(arg) on first
// resumption, and unblocks it. If the new thread's priority exceeds
// the creator's, the creator yields immediately.
func (k *Kernel) Create(name string, priority int, entry func(arg any), arg any) (Tid, error) {
	if entry == nil {
		return 0, ErrNoThread
	}
	k.mu.Lock()
	t := k.newThread(name, priority, entry, arg)
	t.parent = k.current
	if k.current != nil {
		k.current.children = append(k.current.children, t)
	}
	k.mu.Unlock()

	k.Unblock(t)

	g := k.DisableIntr()
	shouldYield := t.effPriority > k.current.effPriority
	g.EnableIntr()
	if shouldYield {
		k.Yield()
	}
	return t.id, nil
}

// Sleep puts the calling thread to sleep for the given number of
// ticks, inserting it into the sleepers queue ordered ascending by
// wake_tick. Must not be called from interrupt context.
func (k *Kernel) Sleep(ticks int64) {
	if ticks <= 0 {
		k.Yield()
		return
	}
	g := k.DisableIntr()
	t := k.current
	t.wakeTick = k.ticks + ticks
	t.queue = queueSleepers
	insertSleeperLocked(k, t)
	k.Block(g)
	g.EnableIntr()
}

// insertSleeperLocked inserts t into k.sleepers, keeping it sorted
// ascending by wake_tick.
func insertSleeperLocked(k *Kernel, t *Thread) {
	for e := k.sleepers.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread).wakeTick > t.wakeTick {
			k.sleepers.InsertBefore(t, e)
			return
		}
	}
	k.sleepers.PushBack(t)
}

// wakeDueSleepersLocked walks the sleepers queue from the front,
// unblocking every thread with wake_tick <= now, stopping at the
// first that is not yet due (spec.md §4.1 tick step 2). Must be
// called with the critical section held.
func (k *Kernel) wakeDueSleepersLocked(now int64) {
	for e := k.sleepers.Front(); e != nil; {
		t := e.Value.(*Thread)
		if t.wakeTick > now {
			return
		}
		next := e.Next()
		k.sleepers.Remove(e)
		t.queue = queueNone
		k.unblockLocked(t)
		e = next
	}
}

// Exit runs process teardown (via OnExit, if set), signals any
// waiting parent, and transitions the calling thread to DYING. It
// does not return.
func (k *Kernel) Exit(status int) {
	t := k.Current()
	if t.onExit != nil {
		t.onExit(t)
	}

	g0 := k.DisableIntr()
	t.exitStatus = status
	g0.EnableIntr()
	t.exitSem.Up(k, false)

	k.DisableIntr()
	t.state = StateDying
	klog.Debugf("kernel: thread %d (%s) exiting with status %d", t.id, t.name, status)
	k.schedule()
	// schedule() has released the critical section and returned without
	// parking this goroutine, since a DYING thread is never resumed. End
	// the goroutine here so no code of the exited thread runs after Exit.
	runtime.Goexit()
}

// SetOnExit installs the process-teardown hook (closing the VM's
// pages, the fd table, etc.) called synchronously at the start of
// Exit, before the thread is marked DYING.
func (t *Thread) SetOnExit(fn func(*Thread)) { t.onExit = fn }

// SetPriority sets the calling thread's base priority and recomputes
// its effective priority from donations. No-op under MLFQS (priority
// is computed from recent_cpu/nice instead), spec.md §4.1/§4.3. If the
// new effective priority drops below the highest ready thread's, the
// caller yields.
func (k *Kernel) SetPriority(t *Thread, priority int) {
	g := k.DisableIntr()
	if k.policy == sched.PolicyMLFQS {
		g.EnableIntr()
		return
	}
	t.basePriority = priority
	recomputeEffectivePriority(t)
	donationWalk(t)
	self := t == k.current
	g.EnableIntr()
	if self {
		g2 := k.DisableIntr()
		highest, ok := k.highestReadyPriority()
		mine := t.effPriority
		g2.EnableIntr()
		if ok && highest > mine {
			k.Yield()
		}
	}
}

// GetPriority returns t's effective priority.
func (k *Kernel) GetPriority(t *Thread) int {
	g := k.DisableIntr()
	defer g.EnableIntr()
	return t.effPriority
}
