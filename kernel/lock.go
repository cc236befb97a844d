package kernel

import "nanokernel.dev/nanokernel/internal/klog"

// Lock is a binary semaphore with an owning thread and priority
// donation, spec.md §3/§4.2. Invariant: holder != nil ⇔ inner value
// == 0. Recursive acquisition is forbidden.
type Lock struct {
	k      *Kernel
	holder *Thread
	inner  *Semaphore
}

// NewLock creates an unheld lock.
func NewLock() *Lock {
	return &Lock{inner: NewSemaphore(1)}
}

// Holder returns the lock's current owner, or nil.
func (lk *Lock) Holder() *Thread { return lk.holder }

// Acquire blocks until lk is free, performing priority donation along
// the wait-for chain while it waits. Recursive acquisition by the
// current holder is a kernel bug and is asserted against.
func (lk *Lock) Acquire(k *Kernel) {
	lk.inner.bind(k)
	if lk.k == nil {
		lk.k = k
	}
	g := k.DisableIntr()
	me := k.current
	if lk.holder == me {
		klog.Panicf("kernel: thread %d attempted recursive Acquire on a held lock", me.id)
	}
	if lk.holder != nil {
		me.waitOnLock = lk
		insertDonation(lk.holder, me)
		donationWalk(me)
	}
	g.EnableIntr()

	lk.inner.Down(k)

	g = k.DisableIntr()
	me.waitOnLock = nil
	lk.holder = me
	g.EnableIntr()
}

// TryAcquire attempts to acquire lk without blocking.
func (lk *Lock) TryAcquire(k *Kernel) bool {
	lk.inner.bind(k)
	if lk.k == nil {
		lk.k = k
	}
	if !lk.inner.TryDown(k) {
		return false
	}
	g := k.DisableIntr()
	lk.holder = k.current
	g.EnableIntr()
	return true
}

// Release gives up lk, which the calling thread must hold. Every
// donation made on account of waiting for lk is removed from the
// releasing thread's donor list before its effective priority is
// recomputed.
func (lk *Lock) Release(k *Kernel) {
	g := k.DisableIntr()
	me := k.current
	if lk.holder != me {
		klog.Panicf("kernel: thread %d released a lock it does not hold", me.id)
	}
	lk.holder = nil
	removeDonationsFor(me, lk)
	recomputeEffectivePriority(me)
	g.EnableIntr()

	lk.inner.Up(k, false)
}

// insertDonation records that donor is waiting on holder (indirectly,
// through holder's lock), ordered by descending donor priority, and
// raises holder's effective priority to at least donor's.
func insertDonation(holder, donor *Thread) {
	i := 0
	for i < len(holder.donations) && holder.donations[i].effPriority >= donor.effPriority {
		i++
	}
	holder.donations = append(holder.donations, nil)
	copy(holder.donations[i+1:], holder.donations[i:])
	holder.donations[i] = donor
	recomputeEffectivePriority(holder)
}

// removeDonationsFor strips from holder's donor list every donation
// made on account of lk specifically; a donor may be waiting on a different lock held by
// the same thread's prior acquisitions, so this only removes entries
// whose wait_on_lock still points at lk at the moment of release.
func removeDonationsFor(holder *Thread, lk *Lock) {
	kept := holder.donations[:0]
	for _, d := range holder.donations {
		if d.waitOnLock != lk {
			kept = append(kept, d)
		}
	}
	holder.donations = kept
}

// recomputeEffectivePriority sets t.effPriority = max(base, max donor
// priority), spec.md §3's invariant.
func recomputeEffectivePriority(t *Thread) {
	eff := t.basePriority
	for _, d := range t.donations {
		if d.effPriority > eff {
			eff = d.effPriority
		}
	}
	t.effPriority = eff
}

// donationWalk implements spec.md §4.2's acquire-time cascade: walk
// up to donationHopLimit lock-wait hops, recomputing each holder's
// effective priority from its donor list. The same cap is applied
// here and in SetPriority, per DESIGN NOTES §9's resolution of the
// "inconsistent cap" open question.
func donationWalk(start *Thread) {
	cur := start
	for hop := 0; hop < donationHopLimit; hop++ {
		if cur.waitOnLock == nil {
			return
		}
		holder := cur.waitOnLock.holder
		if holder == nil {
			return
		}
		recomputeEffectivePriority(holder)
		cur = holder
	}
}
