package vm

// KernelSpaceBase marks the start of the kernel's half of the address
// space; a user-mode fault at or above this address is always
// invalid, spec.md §4.4's page-fault handler.
const KernelSpaceBase uintptr = 0x8000000000

// Fault handles a page fault at addr. userMode, write, and notPresent
// mirror the trapped fault's mode/write/not-present bits. Returns true
// if the fault was resolved and the faulting instruction should be
// retried, false if the offending thread must be killed with exit
// status −1. Fault passes no saved stack pointer (savedRSP 0), so a
// stack-growth fault through it is checked against STACK_LIMIT only,
// not against the 8-byte distance below a stack pointer.
func (v *VM) Fault(addr uintptr, userMode, write, notPresent bool) bool {
	return v.faultWithRSP(addr, userMode, write, notPresent, 0)
}

// FaultAt is Fault with an explicit savedRSP: the user-mode stack
// pointer captured at the most recent syscall entry (kernel-mode faults
// use this instead of a live %rsp, spec.md §4.4). Used by the
// stack-growth path and by tests that drive faults directly.
func (v *VM) FaultAt(addr uintptr, userMode, write, notPresent bool, savedRSP uintptr) bool {
	return v.faultWithRSP(addr, userMode, write, notPresent, savedRSP)
}

func (v *VM) faultWithRSP(addr uintptr, userMode, write, notPresent bool, savedRSP uintptr) bool {
	if !notPresent {
		// The page is present but the access still faulted: a write to
		// a read-only mapping. No COW hook is installed, so this always
		// fails.
		return false
	}
	if userMode && (addr == 0 || addr >= KernelSpaceBase) {
		return false
	}

	va := alignDown(addr)
	if _, ok := v.Lookup(va); ok {
		return v.Claim(va)
	}

	if v.tryGrowStack(addr, savedRSP) {
		return v.Claim(va)
	}
	return false
}

// tryGrowStack installs a fresh anonymous stack page if addr looks
// like a legitimate stack-growth fault: at most 8 bytes below the
// trapped stack pointer, and within STACK_LIMIT of the stack's fixed
// top, spec.md §4.4.
func (v *VM) tryGrowStack(addr, savedRSP uintptr) bool {
	if addr > UserStackTop {
		return false
	}
	if savedRSP > addr && savedRSP-addr > 8 {
		return false
	}
	low := UserStackTop - uintptr(v.stackLimit) + PageSize
	if addr < low {
		return false
	}

	v.mu.Lock()
	if v.stackBytes+PageSize > v.stackLimit {
		v.mu.Unlock()
		return false
	}
	v.stackBytes += PageSize
	v.mu.Unlock()

	return v.allocInternal(addr, true, KindAnon, AnonZeroInitializer, nil, true, false)
}
