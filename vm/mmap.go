package vm


// Mmap maps length bytes of file starting at offset into the caller's
// address space at va, spec.md §4.4. Returns (va, true) on success, or
// (0, false) if va is misaligned, nil, overlaps the stack region, or
// any page in the requested range is already present.
func (v *VM) Mmap(va uintptr, length int64, writable bool, file File, offset int64) (uintptr, bool) {
	if va == 0 || !PageAligned(va) || length <= 0 {
		return 0, false
	}
	stackLow := UserStackTop - uintptr(v.stackLimit)
	if va+uintptr(length) > stackLow && va < UserStackTop {
		return 0, false
	}

	numPages := (int(length) + PageSize - 1) / PageSize
	for i := 0; i < numPages; i++ {
		if _, ok := v.Lookup(va + uintptr(i*PageSize)); ok {
			return 0, false
		}
	}

	fileLen, err := file.Length()
	if err != nil {
		return 0, false
	}

	remaining := fileLen - offset
	for i := 0; i < numPages; i++ {
		pageVA := va + uintptr(i*PageSize)

		reopened, err := file.Reopen()
		if err != nil {
			return 0, false
		}

		readBytes := int64(PageSize)
		if remaining < readBytes {
			if remaining > 0 {
				readBytes = remaining
			} else {
				readBytes = 0
			}
		}
		zeroBytes := int64(PageSize) - readBytes
		pageOff := offset + int64(i*PageSize)
		remaining -= readBytes

		aux := &mmapAux{
			file:      reopened,
			off:       pageOff,
			readBytes: int(readBytes),
			zeroBytes: int(zeroBytes),
		}
		ok := v.allocInternal(pageVA, writable, KindFile, mmapLoader, aux, false, i == 0)
		if !ok {
			return 0, false
		}
		v.mu.Lock()
		p := v.pages[pageVA]
		p.file = reopened
		p.fileOff = pageOff
		p.readBytes = int(readBytes)
		p.zeroBytes = int(zeroBytes)
		v.mu.Unlock()
	}
	return va, true
}

// mmapAux carries a single mmap'd page's lazy-load parameters.
type mmapAux struct {
	file      File
	off       int64
	readBytes int
	zeroBytes int
}

// mmapLoader is the FILE initializer for mmap'd pages: reads
// read_bytes from the page's reopened file at its stored offset, then
// zero-fills the remainder of the frame.
func mmapLoader(p *Page, frame []byte) bool {
	if p.readBytes > 0 {
		n, err := p.file.ReadAt(frame[:p.readBytes], p.fileOff)
		if err != nil || n != p.readBytes {
			return false
		}
	}
	for i := p.readBytes; i < PageSize; i++ {
		frame[i] = 0
	}
	return true
}

// Munmap tears down the mapping headed at va, spec.md §4.4. Fails
// silently (no-op) if va is not found, not FILE-typed, or not the
// mapping's head page.
func (v *VM) Munmap(va uintptr) {
	head, ok := v.Lookup(va)
	if !ok || head.kind != KindFile || !head.isMmapHead {
		return
	}

	cur := va
	first := true
	for {
		p, ok := v.Lookup(cur)
		if !ok || p.kind != KindFile {
			return
		}
		if !first && p.isMmapHead {
			return
		}
		first = false
		v.destroyPage(cur)
		cur += PageSize
	}
}
