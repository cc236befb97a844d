// Package syscallapi is the thin syscall surface spec.md §6 names as
// relevant to the core: halt, exit, fork, exec, wait, mmap, munmap.
// It binds package kernel's threads to package vm's address spaces,
// mirroring the source kernel's own separation between process control
// (userprog/syscall.c) and its two collaborators (threads, vm).
// cmd/kctl uses it for fork, wait, exit and mmap/munmap; its scenarios
// also call package kernel and package vm directly.
package syscallapi

import (
	"errors"
	"sync"

	"nanokernel.dev/nanokernel/internal/vfstore"
	"nanokernel.dev/nanokernel/kernel"
	"nanokernel.dev/nanokernel/vm"
)

// ErrNotImplemented is returned by Exec: the ELF loader and full
// command dispatch are out of scope (spec.md §1 Non-goals), but the
// syscall number itself is still part of the named surface, so a
// caller gets a clear error instead of a missing method.
var ErrNotImplemented = errors.New("syscallapi: exec is out of scope for this core")

// MMUFactory creates a fresh, empty page-map root for a new process.
type MMUFactory func() vm.MMU

// API wires the thread manager and the virtual memory manager
// together behind the syscall names spec.md §6 lists.
type API struct {
	k          *kernel.Kernel
	sys        *vm.System
	fs         vm.FileSystem
	mmuFactory MMUFactory
	stackLimit int

	mu  sync.Mutex
	vms map[kernel.Tid]*vm.VM
}

// New builds an API bound to a kernel, the shared VM machinery, a
// file-system collaborator for mmap'd files, an MMU factory for new
// processes' page-map roots, and the STACK_LIMIT every process's
// stack growth is bounded by.
func New(k *kernel.Kernel, sys *vm.System, fs vm.FileSystem, mmuFactory MMUFactory, stackLimit int) *API {
	return &API{
		k:          k,
		sys:        sys,
		fs:         fs,
		mmuFactory: mmuFactory,
		stackLimit: stackLimit,
		vms:        make(map[kernel.Tid]*vm.VM),
	}
}

// NewVFStoreAPI is a convenience constructor wiring the reference
// internal/vfstore collaborator as the file system, the common case
// for cmd/kctl and tests.
func NewVFStoreAPI(k *kernel.Kernel, sys *vm.System, store *vfstore.Store, mmuFactory MMUFactory, stackLimit int) *API {
	return New(k, sys, vm.NewVFStoreFileSystem(store), mmuFactory, stackLimit)
}

// Bootstrap creates and binds a VM to the kernel's initial thread
// (main), returning it so callers can vm_alloc the process's initial
// segments before entering user code.
func (a *API) Bootstrap(main *kernel.Thread) *vm.VM {
	v := vm.New(a.sys, a.mmuFactory(), a.fs, a.stackLimit)
	a.bind(main, v)
	return v
}

func (a *API) bind(t *kernel.Thread, v *vm.VM) {
	a.mu.Lock()
	a.vms[t.ID()] = v
	a.mu.Unlock()
	t.SetOnExit(func(*kernel.Thread) { v.Teardown() })
}

// VMFor returns the VM bound to t, if any.
func (a *API) VMFor(t *kernel.Thread) (*vm.VM, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.vms[t.ID()]
	return v, ok
}

// Halt powers the machine off without cleanup, spec.md §6. There is
// no real hardware to power off in this simulation; onHalt is called
// synchronously so a caller (cmd/kctl) can decide what "off" means —
// typically os.Exit(0).
func (a *API) Halt(onHalt func()) {
	if onHalt != nil {
		onHalt()
	}
}

// Exit terminates the calling thread with status, tearing down its VM
// via the onExit hook Bootstrap/Fork installed, and signals any
// waiting parent.
func (a *API) Exit(status int) {
	a.k.Exit(status)
}

// Fork creates a child thread that deep-copies the caller's VM
// (CopyForFork) before running childEntry, blocking the caller until
// the copy completes, spec.md §4.4/§6.
func (a *API) Fork(name string, childEntry func()) (kernel.Tid, error) {
	parent := a.k.Current()
	parentVM, ok := a.VMFor(parent)
	if !ok {
		return 0, errors.New("syscallapi: fork called on a thread with no VM bound")
	}

	return a.k.Fork(parent, name, func(any) {
		child := a.k.Current()
		childVM := vm.New(a.sys, a.mmuFactory(), a.fs, a.stackLimit)
		a.bind(child, childVM)
		if !vm.CopyForFork(childVM, parentVM) {
			a.k.ReportForked(child)
			a.Exit(-1)
			return
		}
		a.k.ReportForked(child)
		childEntry()
	}, nil)
}

// Exec is out of scope: the ELF loader and argument marshaling are
// excluded by spec.md §1's Non-goals. The syscall name is kept so the
// surface matches spec.md §6 exactly.
func (a *API) Exec(cmd string) (int, error) {
	return -1, ErrNotImplemented
}

// Wait blocks until the child thread tid exits, returning its exit
// status.
func (a *API) Wait(tid kernel.Tid) (int, error) {
	return a.k.Wait(a.k.Current(), tid)
}

// Mmap maps a file into the calling thread's VM.
func (a *API) Mmap(va uintptr, length int64, writable bool, file vm.File, offset int64) (uintptr, bool) {
	v, ok := a.VMFor(a.k.Current())
	if !ok {
		return 0, false
	}
	return v.Mmap(va, length, writable, file, offset)
}

// Munmap unmaps the region headed at va from the calling thread's VM.
func (a *API) Munmap(va uintptr) {
	v, ok := a.VMFor(a.k.Current())
	if !ok {
		return
	}
	v.Munmap(va)
}

// Fault routes a page fault to the calling thread's VM.
func (a *API) Fault(addr uintptr, userMode, write, notPresent bool, savedRSP uintptr) bool {
	v, ok := a.VMFor(a.k.Current())
	if !ok {
		return false
	}
	return v.FaultAt(addr, userMode, write, notPresent, savedRSP)
}
