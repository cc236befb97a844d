package vm

// evictOneLocked runs the clock algorithm once, evicting exactly one
// resident frame and returning it to the shared allocator. Callers
// must already hold sys.swapSem (getFrame does). Returns false if the
// clock list is empty (nothing left to evict).
func (sys *System) evictOneLocked() bool {
	sys.mu.Lock()
	if sys.clock.Len() == 0 {
		sys.mu.Unlock()
		return false
	}
	if sys.cursor == nil {
		sys.cursor = sys.clock.Front()
	}

	start := sys.cursor
	for {
		elem := sys.cursor
		f := elem.Value.(*Frame)
		p := f.page
		v := p.vm

		if v.mmu.IsAccessed(p.va) {
			v.mmu.SetAccessed(p.va, false)
			sys.cursor = sys.cursor.Next()
			if sys.cursor == nil {
				sys.cursor = sys.clock.Front()
			}
			if sys.cursor == start {
				// Every resident page was accessed in this sweep; the
				// accessed bits are now cleared, so the next lap will
				// find a candidate. Evict the one the cursor landed back
				// on rather than looping forever.
				break
			}
			continue
		}
		break
	}

	victim := sys.cursor.Value.(*Frame)
	sys.cursor = sys.cursor.Next()
	sys.clock.Remove(victim.elem)
	victim.elem = nil
	sys.mu.Unlock()

	sys.swapOutFrame(victim)
	return true
}
