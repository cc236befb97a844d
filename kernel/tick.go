package kernel

import (
	"github.com/google/btree"

	"nanokernel.dev/nanokernel/kernel/sched"
)

// Tick runs the per-tick bookkeeping spec.md §4.1 names, in
// (simulated) interrupt context. It must be driven by a ktime.Source;
// see cmd/kctl and the kernel package's own tests for wiring examples.
func (k *Kernel) Tick() {
	g := k.DisableIntr()
	defer g.EnableIntr()

	k.ticks++
	k.accountTickLocked()

	k.wakeDueSleepersLocked(k.ticks)

	if k.policy == sched.PolicyMLFQS {
		k.mlfqsTickLocked()
	}

	k.quantum++
	if k.quantum >= k.timeSlice {
		k.yieldOnRet = true
	}
}

// accountTickLocked increments the idle/user/kernel counters spec.md
// §4.1 step 1 names. This simulation does not distinguish user-mode
// from kernel-mode execution within a thread body, so every
// non-idle tick is charged to "kernel" time; a richer collaborator
// that reports whether the interrupted code was in user mode could
// refine this split without changing the interface.
func (k *Kernel) accountTickLocked() {
	switch k.current {
	case k.idle:
		k.stats.IdleTicks++
	default:
		k.stats.KernelTicks++
	}
}

// TakeYieldOnReturn reports and clears the yield-on-return bit set by
// Tick or by a semaphore Up from interrupt context, spec.md §4.3:
// "preemption is triggered ... via a yield-on-return bit when called
// from interrupt context." The driver (cmd/kctl, or a test) must call
// this after Tick returns and, if true, call Yield from thread
// context (never from inside the interrupt handler itself).
func (k *Kernel) TakeYieldOnReturn() bool {
	g := k.DisableIntr()
	defer g.EnableIntr()
	v := k.yieldOnRet
	k.yieldOnRet = false
	return v
}

// mlfqsTickLocked implements spec.md §4.3's MLFQS per-tick formulas.
// Must be called with the critical section held.
func (k *Kernel) mlfqsTickLocked() {
	if k.current != k.idle {
		k.current.recentCPU = k.current.recentCPU.AddInt(1)
	}

	if k.ticks%int64(k.timerFreq) == 0 {
		ready := int64(k.readyTree.Len())
		if k.current != k.idle {
			ready++
		}
		// load_avg = (59/60)*load_avg + (1/60)*ready_threads
		k.loadAvg = sched.FromInt(59).Div(sched.FromInt(60)).Mul(k.loadAvg).
			Add(sched.FromInt(1).Div(sched.FromInt(60)).Mul(sched.FromInt(ready)))

		coeff := k.loadAvg.MulInt(2).Div(k.loadAvg.MulInt(2).AddInt(1))
		for _, t := range k.threads {
			t.recentCPU = coeff.Mul(t.recentCPU).AddInt(int64(t.nice))
		}
	}

	if k.ticks%4 == 0 {
		k.recomputeMLFQSPrioritiesLocked()
	}
}

// recomputeMLFQSPrioritiesLocked recomputes every thread's priority
// from recent_cpu and nice, then rebuilds the ready queue's ordering
// to reflect the new priorities.
func (k *Kernel) recomputeMLFQSPrioritiesLocked() {
	for _, t := range k.threads {
		if t == k.idle {
			continue
		}
		p := sched.PriMax - int(t.recentCPU.ToIntTruncate()/4) - t.nice*2
		t.effPriority = sched.Clamp(p, sched.PriMin, sched.PriMax)
		t.basePriority = t.effPriority
	}
	k.rebuildReadyTreeLocked()
}

// rebuildReadyTreeLocked re-keys every thread currently in the ready
// queue by its (possibly just-changed) effective priority, preserving
// each thread's original insertion sequence so round-robin order among
// threads that were already tied is undisturbed.
func (k *Kernel) rebuildReadyTreeLocked() {
	pending := make([]*Thread, 0, k.readyTree.Len())
	k.readyTree.Ascend(func(i btree.Item) bool {
		pending = append(pending, i.(readyItem).t)
		return true
	})
	k.readyTree = btree.New(32)
	for _, t := range pending {
		k.readyTree.ReplaceOrInsert(readyItem{priority: t.effPriority, seq: t.readySeq, t: t})
	}
}
