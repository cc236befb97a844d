package kernel_test

import (
	"testing"

	"nanokernel.dev/nanokernel/internal/pagepool"
	"nanokernel.dev/nanokernel/kernel"
	"nanokernel.dev/nanokernel/kernel/sched"
)

// TestMLFQSLoadAvgRisesWithReadyThreads is spec.md §4.3's load_avg
// formula: ready threads sitting in the queue for a full timer-frequency
// window of ticks should push load_avg above zero. Tick is pure
// bookkeeping under k.mu and never calls schedule() itself (see
// kernel/tick.go), so the three threads created here can sit in the
// ready tree, fully counted, without ever actually running: main never
// yields or blocks, so it remains current for the whole loop.
func TestMLFQSLoadAvgRisesWithReadyThreads(t *testing.T) {
	k, main := kernel.New(kernel.Config{
		Policy:    sched.PolicyMLFQS,
		TimerFreq: 100,
		TimeSlice: 4,
		Pages:     pagepool.New(16),
	})
	k.Start()
	_ = main // main's default priority (PriMax/2) already exceeds the workers' 20

	for i := 0; i < 3; i++ {
		k.Create("cpu", 20, func(any) {}, nil)
	}

	for i := 0; i < 100; i++ {
		k.Tick()
	}

	if got := k.LoadAvg(); got <= 0 {
		t.Fatalf("load_avg*100 = %d, want > 0 after a full tick window with 3 ready threads", got)
	}
}

// TestMLFQSNiceLowersPriority checks spec.md §4.3: a higher nice value
// lowers a thread's MLFQS-computed priority.
func TestMLFQSNiceLowersPriority(t *testing.T) {
	k, main := kernel.New(kernel.Config{
		Policy:    sched.PolicyMLFQS,
		TimerFreq: 100,
		TimeSlice: 4,
		Pages:     pagepool.New(16),
	})
	k.Start()

	k.SetNice(main, 0)
	before := k.GetPriority(main)
	k.SetNice(main, 10)
	after := k.GetPriority(main)
	if after >= before {
		t.Fatalf("priority after raising nice = %d, want < %d", after, before)
	}
}
