// Package kernel is the thread manager and synchronization core:
// Thread records, the ready/sleepers/destruction queues, the
// context-switch trampoline, and the semaphore/lock/condition-variable
// primitives built strictly on top of it. It plays the role of
// gVisor's pkg/sentry/kernel (TaskSet, Task) for this educational
// kernel, minus the Linux process-model machinery that package adds.
package kernel

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/google/btree"

	"nanokernel.dev/nanokernel/internal/klog"
	"nanokernel.dev/nanokernel/internal/pagepool"
	"nanokernel.dev/nanokernel/kernel/sched"
)

// IdlePriority is the priority the always-present idle thread runs
// at, spec.md §4.1: "an idle thread at priority MIN".
const IdlePriority = sched.PriMin

// donationHopLimit bounds the donation walk, spec.md §4.2: "for up to
// 8 hops ... a safety cap", applied uniformly to lock_acquire and
// set_priority per DESIGN NOTES §9.
const donationHopLimit = 8

// Stats are the per-tick bookkeeping counters spec.md §4.1 step 1
// names, distinguishing idle/user/kernel time.
type Stats struct {
	IdleTicks   int64
	UserTicks   int64
	KernelTicks int64
}

// Kernel owns every thread record, the ready queue, the sleepers
// queue, and the destruction queue, and performs context switching —
// spec.md §4.1.
type Kernel struct {
	mu sync.Mutex

	pages *pagepool.Pool

	policy sched.Policy

	threads map[Tid]*Thread
	nextTid Tid
	nextSeq uint64

	current *Thread
	idle    *Thread

	readyTree *btree.BTree
	sleepers  *list.List // ascending wake_tick, elements are *Thread
	destroyed *list.List // elements are *Thread

	ticks     int64
	quantum   int // ticks consumed by current thread since it started running
	timeSlice int
	timerFreq int
	yieldOnRet bool

	loadAvg sched.Fixed

	stats Stats

	started bool
}

// Config configures a new Kernel, spec.md §4.3's TIME_SLICE/TIMER_FREQ
// and the selected scheduling policy.
type Config struct {
	Policy    sched.Policy
	TimeSlice int
	TimerFreq int
	Pages     *pagepool.Pool
}

// readyItem is the ready queue's btree key: descending effective
// priority, ascending insertion sequence (round robin within a
// priority class).
type readyItem struct {
	priority int
	seq      uint64
	t        *Thread
}

func (a readyItem) Less(than btree.Item) bool {
	b := than.(readyItem)
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

// New creates a Kernel and the initial thread representing the
// calling goroutine ("main"), per the bring-up order in spec.md §6:
// page allocator → thread manager init. The returned *Thread is
// RUNNING and owns no queue membership, matching the invariant that a
// RUNNING thread is in no queue.
func New(cfg Config) (*Kernel, *Thread) {
	if cfg.TimeSlice <= 0 {
		cfg.TimeSlice = 4
	}
	if cfg.TimerFreq <= 0 {
		cfg.TimerFreq = 100
	}
	k := &Kernel{
		pages:     cfg.Pages,
		policy:    cfg.Policy,
		threads:   make(map[Tid]*Thread),
		readyTree: btree.New(32),
		sleepers:  list.New(),
		destroyed: list.New(),
		timeSlice: cfg.TimeSlice,
		timerFreq: cfg.TimerFreq,
	}
	main := k.newThread("main", sched.PriMax/2, nil, nil)
	main.state = StateRunning
	k.current = main
	klog.Infof("kernel: bring-up complete, main thread tid=%d", main.id)
	return k, main
}

// Start creates the idle thread and marks the kernel as having
// "enabled interrupts", spec.md §6's bring-up step thread_start.
func (k *Kernel) Start() {
	k.mu.Lock()
	idle := k.newThread("idle", IdlePriority, func(any) {
		k.idleLoop()
	}, nil)
	k.idle = idle
	k.mu.Unlock()
	k.Unblock(idle)
	k.started = true
	klog.Infof("kernel: idle thread started tid=%d", idle.id)
}

func (k *Kernel) newThread(name string, priority int, entry func(any), arg any) *Thread {
	k.nextTid++
	t := &Thread{
		magic:        threadMagic,
		id:           k.nextTid,
		name:         truncName(name),
		k:            k,
		state:        StateBlocked,
		queue:        queueNone,
		basePriority: priority,
		effPriority:  priority,
		resume:       make(chan struct{}, 1),
		entry:        entry,
		arg:          arg,
		exitSem:      NewSemaphore(0),
		forkSem:      NewSemaphore(0),
	}
	k.threads[t.id] = t
	if entry != nil {
		go k.runThread(t)
	}
	return t
}

func truncName(s string) string {
	if len(s) > 15 {
		return s[:15]
	}
	return s
}

// runThread is the architectural trampoline: it parks until first
// resumed, then "enables interrupts" (there is nothing to enable in
// the simulation; the comment marks the spot) and calls entry(arg).
// When entry returns, the thread exits with status 0, matching a
// kernel thread that falls off the end of its function body.
func (k *Kernel) runThread(t *Thread) {
	<-t.resume
	t.checkMagic()
	t.entry(t.arg)
	k.Exit(0)
}

// Current returns the calling goroutine's thread record. Callers must
// only call this from within a goroutine kernel.New/Create spawned.
func (k *Kernel) Current() *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Lookup returns the thread with the given tid, if still alive.
func (k *Kernel) Lookup(tid Tid) (*Thread, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.threads[tid]
	return t, ok
}

// Stats returns a snapshot of the per-tick bookkeeping counters.
func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stats
}

// Ticks returns the number of ticks delivered so far.
func (k *Kernel) Ticks() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// LoadAvg returns get_load_avg() scaled by 100 and rounded to the
// nearest int, spec.md §4.3.
func (k *Kernel) LoadAvg() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadAvg.MulInt(100).ToIntRound()
}

// SetNice sets t's MLFQS niceness and immediately recomputes its
// priority from the new value.
func (k *Kernel) SetNice(t *Thread, nice int) {
	g := k.DisableIntr()
	t.nice = nice
	if k.policy == sched.PolicyMLFQS {
		p := sched.PriMax - int(t.recentCPU.ToIntTruncate()/4) - nice*2
		t.effPriority = sched.Clamp(p, sched.PriMin, sched.PriMax)
		t.basePriority = t.effPriority
	}
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

// GetNice returns t's MLFQS niceness.
func (k *Kernel) GetNice(t *Thread) int {
	g := k.DisableIntr()
	defer g.EnableIntr()
	return t.nice
}

// GetRecentCPU returns t's recent_cpu scaled by 100 and rounded to the
// nearest int, spec.md §4.3.
func (k *Kernel) GetRecentCPU(t *Thread) int64 {
	g := k.DisableIntr()
	defer g.EnableIntr()
	return t.recentCPU.MulInt(100).ToIntRound()
}

func (k *Kernel) String() string {
	return fmt.Sprintf("Kernel{threads=%d ticks=%d}", len(k.threads), k.ticks)
}
