// Package softmmu is the reference MMU collaborator: a pure-Go
// simulation of an x86-64 4-level page map, since there is no ring-0
// page table to program from user space in this environment. It
// implements exactly the pml4_* surface spec.md §6 names.
package softmmu

import "sync"

// PageSize matches pagepool.PageSize; duplicated here to avoid an
// import cycle between the two leaf packages.
const PageSize = 4096

type entry struct {
	kva       uintptr
	writable  bool
	accessed  bool
	dirty     bool
}

// PML4 is one process's page-map root.
type PML4 struct {
	mu      sync.Mutex
	entries map[uintptr]*entry
}

// Create allocates a fresh, empty page-map root.
func Create() *PML4 {
	return &PML4{entries: make(map[uintptr]*entry)}
}

// Destroy releases a page-map root. There is nothing to free in the
// software simulation beyond letting the map be garbage collected.
func (p *PML4) Destroy() {}

// Activate would load cr3 on real hardware; it is a no-op here, kept
// only so call sites mirror pml4_activate(va).
func (p *PML4) Activate() {}

// GetPage returns the kva mapped at va, or (0, false) if unmapped.
func (p *PML4) GetPage(va uintptr) (uintptr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[va]
	if !ok {
		return 0, false
	}
	return e.kva, true
}

// SetPage installs a mapping from va to kva with the given writable
// bit. Accessed/dirty bits reset to false, matching a fresh hardware
// PTE.
func (p *PML4) SetPage(va, kva uintptr, writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[va] = &entry{kva: kva, writable: writable}
}

// ClearPage removes the mapping at va, if any.
func (p *PML4) ClearPage(va uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, va)
}

// IsDirty reports the mapping's dirty bit.
func (p *PML4) IsDirty(va uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		return e.dirty
	}
	return false
}

// IsAccessed reports the mapping's accessed bit.
func (p *PML4) IsAccessed(va uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		return e.accessed
	}
	return false
}

// SetDirty sets the mapping's dirty bit.
func (p *PML4) SetDirty(va uintptr, bit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.dirty = bit
	}
}

// SetAccessed sets the mapping's accessed bit.
func (p *PML4) SetAccessed(va uintptr, bit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.accessed = bit
	}
}

// MarkAccess simulates the hardware setting the accessed bit (and the
// dirty bit, if write is true) on every load/store through the
// mapping. The page-fault handler and tests call this in lieu of a
// real CPU doing it transparently.
func (p *PML4) MarkAccess(va uintptr, write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.accessed = true
		if write {
			e.dirty = true
		}
	}
}
