package main

import (
	"fmt"

	"nanokernel.dev/nanokernel/internal/klog"
	"nanokernel.dev/nanokernel/kernel"
	"nanokernel.dev/nanokernel/ktime"
	"nanokernel.dev/nanokernel/vm"
)

// scenario is one of the six concrete end-to-end exercises spec.md §8
// names. Each builds its own rig, drives it to completion, and
// returns a human-readable trace. Every cross-thread handshake here
// uses a kernel.Semaphore rather than a bare Go channel: a thread
// blocked on a Go channel never calls back into schedule(), so it
// would freeze the whole simulated CPU instead of yielding it.
type scenario func(r *rig) (string, error)

var scenarios = map[string]scenario{
	"priority-donation": scenarioPriorityDonation,
	"mlfqs-fairness":    scenarioMLFQSFairness,
	"sleep-order":       scenarioSleepOrder,
	"stack-growth":      scenarioStackGrowth,
	"mmap-writeback":    scenarioMmapWriteback,
	"fork-anon":         scenarioForkAnon,
}

// scenarioPriorityDonation is spec.md §8 scenario 1: L(5) holds lk1,
// M(20) donates by blocking on it; L holds lk2 too, held by X(3), so
// L's donation cascades to X; then H(40) blocks on lk1 and the
// donation cascades again, depth 2.
func scenarioPriorityDonation(r *rig) (string, error) {
	k := r.k
	lk1 := kernel.NewLock()
	lk2 := kernel.NewLock()

	xAcquired := kernel.NewSemaphore(0)
	lHoldsBoth := kernel.NewSemaphore(0)
	mBlocked := kernel.NewSemaphore(0)
	hBlocked := kernel.NewSemaphore(0)
	allDone := kernel.NewSemaphore(0)

	var trace []string
	record := func(s string) { trace = append(trace, s) }

	k.Create("X", 3, func(any) {
		lk2.Acquire(k)
		xAcquired.Up(k, true)
		lHoldsBoth.Down(k)
		hBlocked.Down(k)
		record(fmt.Sprintf("X priority while holding lk2, H blocked: %d", k.GetPriority(k.Current())))
		lk2.Release(k)
	}, nil)

	k.Create("L", 5, func(any) {
		xAcquired.Down(k)
		lk1.Acquire(k)
		lk2.Acquire(k)
		lHoldsBoth.Up(k, true)
		lHoldsBoth.Up(k, true)
		mBlocked.Down(k)
		hBlocked.Down(k)
		record(fmt.Sprintf("L priority with M+H waiting: %d", k.GetPriority(k.Current())))
		lk2.Release(k)
		lk1.Release(k)
		record(fmt.Sprintf("L priority after releasing both: %d", k.GetPriority(k.Current())))
	}, nil)

	k.Create("M", 20, func(any) {
		mBlocked.Up(k, true)
		lk1.Acquire(k)
		record("M acquired lk1")
		lk1.Release(k)
	}, nil)

	k.Create("H", 40, func(any) {
		hBlocked.Up(k, true)
		hBlocked.Up(k, true)
		lk1.Acquire(k)
		record("H acquired lk1")
		lk1.Release(k)
		allDone.Up(k, false)
	}, nil)

	allDone.Down(k)
	out := ""
	for _, s := range trace {
		out += s + "\n"
	}
	return out, nil
}

// scenarioMLFQSFairness is spec.md §8 scenario 2: three CPU-bound
// nice=0 threads over one second of (simulated) ticks should drift
// toward approximately equal priorities, and load_avg should approach
// 3.0.
func scenarioMLFQSFairness(r *rig) (string, error) {
	stop := make(chan struct{})
	for _, name := range []string{"cpu-a", "cpu-b", "cpu-c"} {
		r.k.Create(name, 20, func(any) {
			for {
				select {
				case <-stop:
					return
				default:
				}
				if r.k.TakeYieldOnReturn() {
					r.k.Yield()
				}
			}
		}, nil)
	}

	timer := ktime.NewSimulated()
	go timer.Run(r.k.Tick)

	// Vacate the CPU for one second's worth of ticks so the cpu-bound
	// threads actually get to run; Sleep is a proper kernel block, so
	// this does not starve them the way a plain channel wait would.
	r.k.Sleep(int64(r.TimerFreqHz()))
	close(stop)

	return fmt.Sprintf("load_avg*100=%d (after one 1s update, load_avg = ready_threads/60)", r.k.LoadAvg()), nil
}

// scenarioSleepOrder is spec.md §8 scenario 3: sleep(30), sleep(10),
// sleep(20) issued at tick 0 must unblock in order B, C, A.
func scenarioSleepOrder(r *rig) (string, error) {
	k := r.k
	var order []string
	allDone := kernel.NewSemaphore(0)

	k.Create("A", 10, func(any) { k.Sleep(30); order = append(order, "A"); allDone.Up(k, false) }, nil)
	k.Create("B", 10, func(any) { k.Sleep(10); order = append(order, "B"); allDone.Up(k, false) }, nil)
	k.Create("C", 10, func(any) { k.Sleep(20); order = append(order, "C"); allDone.Up(k, false) }, nil)

	timer := ktime.NewSimulated()
	go timer.Run(k.Tick)

	allDone.Down(k)
	allDone.Down(k)
	allDone.Down(k)
	return fmt.Sprintf("wake order: %v (want [B C A])", order), nil
}

// scenarioStackGrowth is spec.md §8 scenario 4: a write just below the
// current stack bottom installs a new stack page; growing past
// STACK_LIMIT kills the process.
func scenarioStackGrowth(r *rig) (string, error) {
	v, _ := r.api.VMFor(r.main)

	rsp := vm.UserStackTop - 4
	ok1 := v.FaultAt(rsp-4, true, true, true, rsp)

	low := vm.UserStackTop - uintptr(8<<20) // force past a 1 MiB STACK_LIMIT
	ok2 := v.FaultAt(low, true, true, true, low+4)

	return fmt.Sprintf("first growth ok=%v (want true), past-limit growth ok=%v (want false)", ok1, ok2), nil
}

// scenarioMmapWriteback is spec.md §8 scenario 5: map a 4-page region,
// dirty page 2, munmap, and confirm the file reflects the write while
// the other pages are untouched.
func scenarioMmapWriteback(r *rig) (string, error) {
	f, err := r.store.Open("mmap-demo")
	if err != nil {
		return "", err
	}
	orig := make([]byte, 4*vm.PageSize)
	for i := range orig {
		orig[i] = 'a'
	}
	if _, err := f.Write(orig); err != nil {
		return "", err
	}

	v, _ := r.api.VMFor(r.main)
	const base = uintptr(0x10000000)
	_, ok := r.api.Mmap(base, int64(len(orig)), true, vm.AdaptFile(f), 0)
	if !ok {
		return "mmap failed", nil
	}
	for i := 0; i < 4; i++ {
		v.Claim(base + uintptr(i*vm.PageSize))
	}
	buf, _ := v.Bytes(base + 2*vm.PageSize)
	for i := range buf {
		buf[i] = 'Z'
	}
	v.MarkAccess(base+2*vm.PageSize, true)
	r.api.Munmap(base)

	check := make([]byte, vm.PageSize)
	f2, _ := r.store.Open("mmap-demo")
	f2.ReadAt(check, 2*vm.PageSize)
	return fmt.Sprintf("page 2 after munmap starts with %q (want all 'Z')", string(check[:8])), nil
}

// scenarioForkAnon is spec.md §8 scenario 6: parent writes 'A' at va,
// forks, child writes 'B' at va, and both sides read back their own
// value. The pages are not evicted and re-faulted after the fork; only
// the resident copy is checked.
func scenarioForkAnon(r *rig) (string, error) {
	v, _ := r.api.VMFor(r.main)
	const va = uintptr(0x20000000)
	v.AllocWithInitializer(va, true, vm.KindAnon, vm.AnonZeroInitializer, nil)
	v.Claim(va)
	buf, _ := v.Bytes(va)
	buf[0] = 'A'

	childDone := make(chan byte, 1)
	_, err := r.api.Fork("child", func() {
		cv, _ := r.api.VMFor(r.k.Current())
		cbuf, _ := cv.Bytes(va)
		cbuf[0] = 'B'
		childDone <- cbuf[0]
		r.api.Exit(0)
	})
	if err != nil {
		return "", err
	}
	childVal := <-childDone
	parentBuf, _ := v.Bytes(va)
	klog.Debugf("fork-anon: parent=%q child=%q", parentBuf[0], childVal)
	return fmt.Sprintf("parent byte=%q child byte=%q (want 'A' and 'B')", parentBuf[0], childVal), nil
}
