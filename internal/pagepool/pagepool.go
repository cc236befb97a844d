// Package pagepool is the reference PageAllocator collaborator: a
// fixed-size arena of 4 KiB frames handed out by kernel virtual
// address, the Go-side stand-in for the architecture's palloc_get_page.
package pagepool

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// PageSize is the fixed frame size the whole core assumes.
const PageSize = 4096

// Flags mirror the USER/ZERO flags spec.md §6 names for get_page.
type Flags uint8

const (
	FlagUser Flags = 1 << iota
	FlagZero
)

// Pool is a bounded set of 4 KiB frames, each addressed by a stable
// "kernel virtual address" that is really just an opaque handle over a
// byte slice — there is no real MMU backing it, matching vm.MMU's
// software simulation.
type Pool struct {
	mu    sync.Mutex
	sem   *semaphore.Weighted
	pages map[uintptr][]byte
	free  []uintptr
	next  uintptr
}

// New allocates a pool capable of handing out n frames. The frame
// count is enforced by a weighted semaphore rather than just the
// length of free: GetPage's exhaustion check is TryAcquire, a
// non-blocking weight-1 acquire that fails immediately instead of
// parking the caller, matching get_page's "never blocks" contract.
func New(n int) *Pool {
	p := &Pool{pages: make(map[uintptr][]byte, n), sem: semaphore.NewWeighted(int64(n))}
	for i := 0; i < n; i++ {
		p.next++
		p.free = append(p.free, p.next)
	}
	return p
}

// GetPage returns a fresh frame's kva, or (0, false) if the pool is
// exhausted — the resource-exhaustion path spec.md §7 requires callers
// to handle by triggering eviction rather than panicking.
func (p *Pool) GetPage(flags Flags) (uintptr, bool) {
	if !p.sem.TryAcquire(1) {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	kva := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	buf := make([]byte, PageSize)
	if flags&FlagZero != 0 {
		// already zero-valued
	}
	p.pages[kva] = buf
	return kva, true
}

// FreePage returns kva to the pool.
func (p *Pool) FreePage(kva uintptr) {
	p.mu.Lock()
	if _, ok := p.pages[kva]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.pages, kva)
	p.free = append(p.free, kva)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Bytes returns the backing storage for kva, for direct read/write by
// the VM layer and the swap path. The slice is owned by the pool's
// caller for as long as the frame remains allocated.
func (p *Pool) Bytes(kva uintptr) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[kva]
}

// Available reports the number of free frames, used by tests that
// deliberately exhaust the pool to exercise eviction.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
