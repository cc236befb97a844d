package vm

import "container/list"

// Frame is a resident physical page, spec.md §3: kernel virtual
// address, a back-pointer to the owning page, and membership in the
// global clock-order list.
type Frame struct {
	kva  uintptr
	page *Page
	elem *list.Element
}

// KVA returns the frame's kernel virtual address.
func (f *Frame) KVA() uintptr { return f.kva }

// Page returns the page currently mapped to this frame.
func (f *Frame) Page() *Page { return f.page }

// trackResident inserts a newly mapped frame into the clock order.
func (sys *System) trackResident(f *Frame) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	f.elem = sys.clock.PushBack(f)
}

// untrackResident removes a frame from the clock order, e.g. on
// process teardown or explicit munmap.
func (sys *System) untrackResident(f *Frame) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if f.elem == nil {
		return
	}
	if sys.cursor == f.elem {
		sys.cursor = f.elem.Next()
	}
	sys.clock.Remove(f.elem)
	f.elem = nil
}
