// Package vm is the virtual memory manager: per-thread supplemental
// page tables, demand paging, clock eviction, swap, mmap/munmap, and
// fork's copy-on-fork page duplication. It plays the role of the
// teacher's pkg/sentry/mm for this educational kernel, minus the
// multi-platform memory-set bookkeeping that package carries.
package vm

import (
	"container/list"
	"fmt"
	"sync"

	"nanokernel.dev/nanokernel/internal/pagepool"
	"nanokernel.dev/nanokernel/kernel"
)

// PageSize is the fixed page size the whole core assumes, matching
// internal/pagepool.PageSize.
const PageSize = pagepool.PageSize

// UserStackTop is the fixed top-of-stack user virtual address, the
// same constant the source kernel this spec was distilled from uses.
const UserStackTop uintptr = 0x47480000

// SectorsPerPage is the number of 512-byte swap-disk sectors backing
// one page, spec.md §4.4: "one page = 8 disk sectors of 512 bytes."
const SectorsPerPage = PageSize / 512

// alignDown rounds va down to the nearest page boundary.
func alignDown(va uintptr) uintptr { return va &^ (PageSize - 1) }

// PageAligned reports whether va is page-aligned.
func PageAligned(va uintptr) bool { return va&(PageSize-1) == 0 }

// System is the process-independent machinery every VM shares: the
// frame allocator, the swap disk and its bitmap, the kernel-wide swap
// semaphore, and the global clock-order list of resident frames.
// Exactly one System exists per kernel instance, spec.md §4.4's
// "global list of currently-resident pages" and "kernel-wide swap
// binary semaphore."
type System struct {
	k     *kernel.Kernel
	alloc kernel.PageAllocator
	disk  SwapDisk

	// swapSem is the single kernel-wide binary semaphore spec.md §4.4's
	// Resource policy names, serializing claim/evict so two VMs never
	// race to evict the same frame on this single-CPU model.
	swapSem *kernel.Semaphore

	mu         sync.Mutex // protects swapBitmap, clock, cursor below
	swapBitmap []bool     // one bit per page-sized swap slot
	clock      *list.List // clock order, elements are *Frame
	cursor     *list.Element
}

// NewSystem builds the shared VM machinery atop a kernel, a frame
// allocator, and a swap disk.
func NewSystem(k *kernel.Kernel, alloc kernel.PageAllocator, disk SwapDisk) *System {
	slots := disk.Size() / SectorsPerPage
	return &System{
		k:          k,
		alloc:      alloc,
		disk:       disk,
		swapSem:    kernel.NewSemaphore(1),
		swapBitmap: make([]bool, slots),
		clock:      list.New(),
	}
}

// VM is one thread's supplemental page table plus its private page-map
// root, spec.md §3: "Each thread owns a supplemental page table keyed
// by page-aligned VA."
type VM struct {
	sys *System
	mmu MMU
	fs  FileSystem

	mu         sync.Mutex
	pages      map[uintptr]*Page
	stackLimit int
	stackBytes int
}

// New creates an empty VM bound to the shared System, an MMU instance
// (one page-map root per process), and a file-system collaborator for
// FILE-backed pages. stackLimit is the maximum total bytes of stack
// growth permitted, spec.md §4.4's STACK_LIMIT (default 1 MiB).
func New(sys *System, mmu MMU, fs FileSystem, stackLimit int) *VM {
	return &VM{
		sys:        sys,
		mmu:        mmu,
		fs:         fs,
		pages:      make(map[uintptr]*Page),
		stackLimit: stackLimit,
	}
}

// Lookup returns the supplemental-table entry at va, if any.
func (v *VM) Lookup(va uintptr) (*Page, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.pages[alignDown(va)]
	return p, ok
}

// Bytes returns the resident frame's backing bytes for va directly,
// for callers that need raw access to a claimed page's memory (tests
// and kctl scenarios) rather than a full load/store syscall path.
// Returns (nil, false) if va has no resident mapping.
func (v *VM) Bytes(va uintptr) ([]byte, bool) {
	v.mu.Lock()
	p, ok := v.pages[alignDown(va)]
	v.mu.Unlock()
	if !ok || !p.Resident() {
		return nil, false
	}
	return v.sys.alloc.Bytes(p.frame.kva), true
}

// MarkAccess records a load (or, if write, a store) through va's
// mapping, the accessed/dirty bookkeeping real hardware performs on
// every memory reference through a mapped page. There is no real CPU
// executing loads and stores in this simulation, so any caller that
// mutates a claimed page's bytes directly (via Bytes) must call this
// afterward for eviction (IsAccessed) and FILE write-back (IsDirty) to
// see the access, spec.md §4.4.
func (v *VM) MarkAccess(va uintptr, write bool) {
	va = alignDown(va)
	v.mmu.SetAccessed(va, true)
	if write {
		v.mmu.SetDirty(va, true)
	}
}

// Teardown destroys every page in the table, per spec.md §3's
// process-teardown ownership rule: FILE pages write back if dirty,
// ANON pages release their swap slot if swapped.
func (v *VM) Teardown() {
	v.mu.Lock()
	vas := make([]uintptr, 0, len(v.pages))
	for va := range v.pages {
		vas = append(vas, va)
	}
	v.mu.Unlock()
	for _, va := range vas {
		v.destroyPage(va)
	}
	v.mmu.Destroy()
}

func (v *VM) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fmt.Sprintf("VM{pages=%d stackBytes=%d}", len(v.pages), v.stackBytes)
}
