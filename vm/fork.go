package vm

import "github.com/mohae/deepcopy"

// CopyForFork duplicates every entry of src's supplemental page table
// into dst (which must be empty), spec.md §4.4's
// supplemental_page_table_copy. UNINIT pages get a deep-copied aux
// value (aux is caller-supplied `any`, so a shallow copy would alias
// mutable parent/child state — mohae/deepcopy walks it structurally).
// Resident ANON pages are byte-copied into a freshly allocated child
// frame; swapped ANON pages share the parent's slot via a bumped
// fork_cnt; FILE pages reopen the file and share nothing, relying on
// re-fault to re-read.
func CopyForFork(dst, src *VM) bool {
	src.mu.Lock()
	entries := make([]*Page, 0, len(src.pages))
	for _, p := range src.pages {
		entries = append(entries, p)
	}
	src.mu.Unlock()

	for _, sp := range entries {
		if !copyPage(dst, sp) {
			return false
		}
	}
	return true
}

func copyPage(dst *VM, sp *Page) bool {
	switch {
	case sp.state == StateUninit:
		auxCopy := deepcopy.Copy(sp.aux)
		return dst.allocInternal(sp.va, sp.writable, sp.kind, sp.init, auxCopy, sp.isStack, sp.isMmapHead)

	case sp.kind == KindAnon && sp.Resident():
		if !dst.allocInternal(sp.va, sp.writable, sp.kind, sp.init, nil, sp.isStack, sp.isMmapHead) {
			return false
		}
		dst.mu.Lock()
		cp := dst.pages[alignDown(sp.va)]
		dst.mu.Unlock()
		if !dst.claimPage(cp) {
			return false
		}
		srcBytes := sp.vm.sys.alloc.Bytes(sp.frame.kva)
		dstBytes := dst.sys.alloc.Bytes(cp.frame.kva)
		copy(dstBytes, srcBytes)
		return true

	case sp.kind == KindAnon && sp.Swapped():
		if !dst.allocInternal(sp.va, sp.writable, sp.kind, sp.init, nil, sp.isStack, sp.isMmapHead) {
			return false
		}
		dst.mu.Lock()
		cp := dst.pages[alignDown(sp.va)]
		cp.swapSlot = sp.swapSlot
		dst.mu.Unlock()
		sp.vm.mu.Lock()
		sp.swapShare++
		sp.vm.mu.Unlock()
		dst.mu.Lock()
		cp.swapShare = sp.swapShare
		dst.mu.Unlock()
		return true

	case sp.kind == KindFile:
		var reopened File
		if sp.file != nil {
			r, err := sp.file.Reopen()
			if err != nil {
				return false
			}
			reopened = r
		}
		if !dst.allocInternal(sp.va, sp.writable, sp.kind, sp.init, sp.aux, sp.isStack, sp.isMmapHead) {
			return false
		}
		dst.mu.Lock()
		cp := dst.pages[alignDown(sp.va)]
		cp.file = reopened
		cp.fileOff = sp.fileOff
		cp.readBytes = sp.readBytes
		cp.zeroBytes = sp.zeroBytes
		dst.mu.Unlock()
		return true
	}
	return false
}
