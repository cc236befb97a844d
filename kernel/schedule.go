package kernel

import (
	"nanokernel.dev/nanokernel/internal/klog"
)

// IntrGuard is the scope-bound token DESIGN NOTES §9 calls for:
// "model 'interrupts disabled' as a scope-bound token whose presence
// is statically required by any function mutating scheduler queues."
// It carries no state of its own beyond proving the caller went
// through DisableIntr; the kernel's single mutex is the actual
// critical section, modeling the single-CPU interrupt-mask discipline
// of spec.md §5.
type IntrGuard struct {
	k *Kernel
}

// DisableIntr acquires the kernel's single critical section. Safe to
// call from interrupt context (the tick handler) as well as thread
// context, mirroring intr_disable()'s reentrant-free semantics on a
// single CPU.
func (k *Kernel) DisableIntr() IntrGuard {
	k.mu.Lock()
	return IntrGuard{k: k}
}

// EnableIntr releases the critical section acquired by DisableIntr.
func (g IntrGuard) EnableIntr() {
	g.k.mu.Unlock()
}

// insertReady inserts t into the ready queue ordered by descending
// effective priority, round-robin within a priority class via
// insertion sequence. t.state must already be StateReady.
func (k *Kernel) insertReady(t *Thread) {
	k.nextSeq++
	t.readySeq = k.nextSeq
	t.queue = queueReady
	k.readyTree.ReplaceOrInsert(readyItem{priority: t.effPriority, seq: t.readySeq, t: t})
}

// highestReadyPriority peeks the ready queue's front without popping
// it, used by SetPriority to decide whether to yield.
func (k *Kernel) highestReadyPriority() (int, bool) {
	item := k.readyTree.Min()
	if item == nil {
		return 0, false
	}
	return item.(readyItem).priority, true
}

// pickNext pops the highest-priority ready thread, or falls back to
// idle if the ready queue is empty, spec.md §4.1's schedule().
func (k *Kernel) pickNext() *Thread {
	item := k.readyTree.DeleteMin()
	if item == nil {
		return k.idle
	}
	t := item.(readyItem).t
	t.queue = queueNone
	return t
}

// reapDestroyed frees every thread queued for destruction, spec.md
// §3: "the page is freed the next time the scheduler runs."
func (k *Kernel) reapDestroyed() {
	for e := k.destroyed.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*Thread)
		delete(k.threads, t.id)
		k.destroyed.Remove(e)
		e = next
	}
}

// schedule chooses the highest-priority READY thread (or idle),
// switches to it, and — once running again in the resumed thread's
// context — reaps any threads left on the destruction queue. Must be
// called with the critical section held; returns with it still held,
// except when switching away from a DYING thread, whose goroutine is
// about to terminate and will never call EnableIntr.
//
// Preconditions: k.mu held (DisableIntr'd).
func (k *Kernel) schedule() {
	prev := k.current
	if prev != nil && prev.state == StateDying {
		prev.queue = queueDestruction
		k.destroyed.PushBack(prev)
	}

	next := k.pickNext()
	k.current = next
	next.state = StateRunning
	k.quantum = 0

	if prev == next {
		k.reapDestroyed()
		return
	}

	dying := prev != nil && prev.state == StateDying
	klog.Debugf("kernel: switch %v -> %v (tid=%d)", threadLabel(prev), next.name, next.id)

	next.resume <- struct{}{}
	if dying || prev == nil {
		// The outgoing goroutine is terminating (or this is the very
		// first switch out of bootstrap, which never happens in
		// practice since main starts RUNNING). It will never call
		// EnableIntr, so release the section here.
		k.mu.Unlock()
		return
	}
	k.mu.Unlock()
	<-prev.resume
	k.mu.Lock()
	k.reapDestroyed()
}

func threadLabel(t *Thread) string {
	if t == nil {
		return "<none>"
	}
	return t.name
}

// idleLoop is the idle thread's body: block, get woken by a tick
// interrupt return or the fallback pick in schedule(), and
// immediately block again — spec.md §4.1's "sole fallback when the
// ready queue is empty."
func (k *Kernel) idleLoop() {
	for {
		g := k.DisableIntr()
		k.current.state = StateBlocked
		k.schedule()
		g.EnableIntr()
	}
}

// Block sets the calling thread's state to BLOCKED and switches away
// from it. The caller must already hold the critical section (spec.md
// §4.1: "Caller must hold interrupts disabled"). Block does not
// return to the caller until some other thread calls Unblock on it
// and the scheduler picks it again.
func (k *Kernel) Block(g IntrGuard) {
	t := k.current
	t.state = StateBlocked
	k.schedule()
}

// Unblock moves t from BLOCKED to READY and inserts it into the ready
// queue. It does not preempt; the caller decides, per the REDESIGN
// FLAGS resolution in spec.md §9 ("specify as here: caller decides").
func (k *Kernel) Unblock(t *Thread) {
	g := k.DisableIntr()
	defer g.EnableIntr()
	k.unblockLocked(t)
}

func (k *Kernel) unblockLocked(t *Thread) {
	if t.state != StateBlocked {
		klog.Panicf("kernel: Unblock(tid=%d) called on thread in state %v, want BLOCKED", t.id, t.state)
	}
	t.state = StateReady
	k.insertReady(t)
}

// Yield voluntarily gives up the CPU. If the calling thread is not
// idle, it is re-enqueued into the ready queue at its current
// priority before the switch.
func (k *Kernel) Yield() {
	g := k.DisableIntr()
	defer g.EnableIntr()
	t := k.current
	if t != k.idle {
		t.state = StateReady
		k.insertReady(t)
	} else {
		t.state = StateBlocked
	}
	k.schedule()
}

// maybePreemptLocked yields if t now outranks the current thread. If
// called from interrupt context, it instead sets the yield-on-return
// bit so the actual switch happens on interrupt return, per spec.md
// §4.3. Must be called with the critical section held; it always
// returns with the critical section held again, releasing it only
// transiently around the immediate-yield path.
func (k *Kernel) maybePreemptLocked(t *Thread, fromInterrupt bool) {
	if t.effPriority <= k.current.effPriority {
		return
	}
	if fromInterrupt {
		k.yieldOnRet = true
		return
	}
	k.mu.Unlock()
	k.Yield()
	k.mu.Lock()
}
