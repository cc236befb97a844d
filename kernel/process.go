package kernel

import "errors"

// ErrNoChild is returned by Wait when tid is not in the caller's
// child list, or was already waited on, spec.md §6: "wait returns −1
// for any child not in the caller's child list or already waited on."
var ErrNoChild = errors.New("kernel: no such child")

// Wait blocks until the child thread tid exits and returns its exit
// status, consuming the parent/child relationship so a second Wait on
// the same tid fails. This is the scheduler-semantics slice of the
// wait(2) syscall spec.md §1 carves out as in-scope for the core.
func (k *Kernel) Wait(parent *Thread, tid Tid) (int, error) {
	g := k.DisableIntr()
	var target *Thread
	idx := -1
	for i, c := range parent.children {
		if c.id == tid {
			target = c
			idx = i
			break
		}
	}
	if target == nil || target.waited {
		g.EnableIntr()
		return -1, ErrNoChild
	}
	target.waited = true
	parent.children = append(parent.children[:idx], parent.children[idx+1:]...)
	g.EnableIntr()

	target.exitSem.Down(k)
	g2 := k.DisableIntr()
	status := target.exitStatus
	g2.EnableIntr()
	return status, nil
}

// Fork creates a child thread inheriting the parent's priority and
// parent/child relationship, then runs childBody(arg) on it and
// blocks the parent until the child signals (via ReportForked) that
// it has finished duplicating the parent's resources — the VM copy.
// Real fork(2) duplicates the calling thread's entire continuation,
// which a Go goroutine cannot do generically; callers supply the
// child's continuation explicitly as childBody. This is the
// scheduler-semantics slice of fork(2) spec.md §1 carves out as
// in-scope; the full copy-on-fork VM semantics live in package vm.
func (k *Kernel) Fork(parent *Thread, name string, childBody func(arg any), arg any) (Tid, error) {
	tid, err := k.Create(name, parent.effPriority, childBody, arg)
	if err != nil {
		return 0, err
	}
	child, _ := k.Lookup(tid)
	child.forkSem.Down(k)
	return tid, nil
}

// ReportForked signals the forking parent that the calling (child)
// thread has finished duplicating the parent's resources. Must be
// called exactly once, early in a Fork childBody, right after the VM
// copy completes.
func (k *Kernel) ReportForked(child *Thread) {
	child.forkSem.Up(k, false)
}
