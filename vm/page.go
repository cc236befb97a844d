package vm

import "nanokernel.dev/nanokernel/internal/pagepool"

// Kind is the page's target type, recorded at allocation time and
// never changed: ANON or FILE, spec.md §4.4.
type Kind int

const (
	KindAnon Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFile {
		return "FILE"
	}
	return "ANON"
}

// State is a page's current lifecycle state. Every page starts
// UNINIT and transitions exactly once, to ANON or FILE, never back.
type State int

const (
	StateUninit State = iota
	StateAnon
	StateFile
)

func (s State) String() string {
	switch s {
	case StateAnon:
		return "ANON"
	case StateFile:
		return "FILE"
	default:
		return "UNINIT"
	}
}

// Initializer runs once, at claim time, to populate a freshly
// allocated frame's bytes from the page's recorded aux state. It
// returns false on failure (e.g. a short read from a truncated
// backing file).
type Initializer func(p *Page, frame []byte) bool

// Page is one supplemental-page-table entry, spec.md §3.
type Page struct {
	vm *VM

	va       uintptr
	writable bool

	kind  Kind
	state State

	init Initializer
	aux  any

	frame *Frame

	swapSlot  int // -1 if not swapped
	swapShare int // fork_cnt share count on the swap slot

	file      File
	fileOff   int64
	readBytes int
	zeroBytes int

	isStack    bool
	isMmapHead bool
}

// VA returns the page's page-aligned user virtual address.
func (p *Page) VA() uintptr { return p.va }

// Writable reports the page's writable bit.
func (p *Page) Writable() bool { return p.writable }

// Kind returns the page's recorded target type.
func (p *Page) Kind() Kind { return p.kind }

// State returns the page's current lifecycle state.
func (p *Page) State() State { return p.state }

// Resident reports whether the page currently maps to a frame.
func (p *Page) Resident() bool { return p.frame != nil }

// Swapped reports whether the page's ANON bytes currently live on the
// swap disk rather than in a frame.
func (p *Page) Swapped() bool { return p.swapSlot >= 0 }

// IsStack reports the "stack page" marker spec.md §3 names.
func (p *Page) IsStack() bool { return p.isStack }

// IsMmapHead reports the "mmap head" marker distinguishing the first
// page of an mmap region.
func (p *Page) IsMmapHead() bool { return p.isMmapHead }

// AllocWithInitializer registers a lazily-initialized page at va.
// Fails if va is already present. The page starts UNINIT; init runs
// once, at Claim time, to populate the frame from aux.
func (v *VM) AllocWithInitializer(va uintptr, writable bool, kind Kind, init Initializer, aux any) bool {
	return v.allocInternal(va, writable, kind, init, aux, false, false)
}

func (v *VM) allocInternal(va uintptr, writable bool, kind Kind, init Initializer, aux any, isStack, isMmapHead bool) bool {
	va = alignDown(va)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.pages[va]; exists {
		return false
	}
	v.pages[va] = &Page{
		vm:         v,
		va:         va,
		writable:   writable,
		kind:       kind,
		state:      StateUninit,
		init:       init,
		aux:        aux,
		swapSlot:   -1,
		isStack:    isStack,
		isMmapHead: isMmapHead,
	}
	return true
}

// AnonZeroInitializer is the trivial ANON initializer: the frame
// arrives zeroed from the allocator (FlagZero), so there is nothing
// further to do. Used for plain anonymous and stack pages.
func AnonZeroInitializer(p *Page, frame []byte) bool { return true }

// Claim resolves a page to a resident frame: allocates (evicting if
// necessary), installs the hardware mapping, then runs the page's
// initializer. On initializer failure the mapping and frame are
// released and Claim returns false.
func (v *VM) Claim(va uintptr) bool {
	va = alignDown(va)
	v.mu.Lock()
	p, ok := v.pages[va]
	v.mu.Unlock()
	if !ok {
		return false
	}
	return v.claimPage(p)
}

func (v *VM) claimPage(p *Page) bool {
	if p.kind == KindAnon && p.state == StateAnon && !p.Resident() && !p.Swapped() {
		// An initialized ANON page with neither a frame nor a swap slot
		// lost its bytes to an eviction that found no free swap slot.
		return false
	}
	frame, ok := v.getFrame()
	if !ok {
		return false
	}
	frame.page = p

	v.mu.Lock()
	p.frame = frame
	v.mu.Unlock()
	v.mmu.SetPage(p.va, frame.kva, p.writable)

	if p.Swapped() {
		if !v.swapIn(p, frame) {
			v.mmu.ClearPage(p.va)
			v.releaseFrame(frame)
			v.mu.Lock()
			p.frame = nil
			v.mu.Unlock()
			return false
		}
	} else if !p.init(p, v.sys.alloc.Bytes(frame.kva)) {
		v.mmu.ClearPage(p.va)
		v.releaseFrame(frame)
		v.mu.Lock()
		p.frame = nil
		v.mu.Unlock()
		return false
	}

	v.mu.Lock()
	switch p.kind {
	case KindFile:
		p.state = StateFile
	default:
		p.state = StateAnon
	}
	v.mu.Unlock()
	v.sys.trackResident(frame)
	return true
}

// getFrame allocates a frame from the shared pool, triggering
// eviction if the pool is exhausted. The swap semaphore serializes
// this against every other VM's claim/evict on the shared System.
func (v *VM) getFrame() (*Frame, bool) {
	v.sys.swapSem.Down(v.sys.k)
	defer v.sys.swapSem.Up(v.sys.k, false)

	kva, ok := v.sys.alloc.GetPage(pagepool.FlagUser | pagepool.FlagZero)
	if !ok {
		if !v.sys.evictOneLocked() {
			return nil, false
		}
		kva, ok = v.sys.alloc.GetPage(pagepool.FlagUser | pagepool.FlagZero)
		if !ok {
			return nil, false
		}
	}
	return &Frame{kva: kva}, true
}

// releaseFrame returns a frame to the shared pool without going
// through eviction bookkeeping (used on an initializer failure, before
// the frame was ever tracked as resident).
func (v *VM) releaseFrame(f *Frame) {
	v.sys.alloc.FreePage(f.kva)
}

// destroyPage tears a single page down per spec.md §3's ownership
// rule: FILE pages write back if dirty and close their reopened
// handle; ANON pages release their swap slot if swapped; the frame,
// if resident, is unmapped and returned to the pool.
func (v *VM) destroyPage(va uintptr) {
	v.mu.Lock()
	p, ok := v.pages[va]
	if ok {
		delete(v.pages, va)
	}
	v.mu.Unlock()
	if !ok {
		return
	}

	if p.Resident() {
		if p.kind == KindFile && v.mmu.IsDirty(p.va) && p.file != nil {
			buf := make([]byte, p.readBytes)
			copy(buf, v.sys.alloc.Bytes(p.frame.kva))
			p.file.WriteAt(buf, p.fileOff)
		}
		v.sys.untrackResident(p.frame)
		v.mmu.ClearPage(p.va)
		v.sys.alloc.FreePage(p.frame.kva)
	} else if p.Swapped() {
		v.sys.freeSwapSlot(p.swapSlot, p.swapShare)
	}
	if p.file != nil {
		p.file.Close()
	}
}
