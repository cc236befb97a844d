package main

import (
	"os"
	"path/filepath"

	"nanokernel.dev/nanokernel/internal/blockdev"
	"nanokernel.dev/nanokernel/internal/kconfig"
	"nanokernel.dev/nanokernel/internal/klog"
	"nanokernel.dev/nanokernel/internal/pagepool"
	"nanokernel.dev/nanokernel/internal/softmmu"
	"nanokernel.dev/nanokernel/internal/vfstore"
	"nanokernel.dev/nanokernel/kernel"
	"nanokernel.dev/nanokernel/kernel/sched"
	"nanokernel.dev/nanokernel/syscallapi"
	"nanokernel.dev/nanokernel/vm"
)

// rig is the fully wired-up core: a kernel, the shared VM machinery,
// and the syscall surface over both, plus a tick source the caller
// drives. Every kctl subcommand that exercises the core builds one of
// these the same way, the bring-up order spec.md §6 names: page
// allocator → kernel.New → kernel.Start → vm.New.
type rig struct {
	k    *kernel.Kernel
	main *kernel.Thread
	sys  *vm.System
	api  *syscallapi.API

	disk  *blockdev.File
	store *vfstore.Store

	dir       string
	timerFreq int
}

// TimerFreqHz returns the configured tick rate, the number of ticks
// that make up "one second" for scenarios like MLFQS fairness.
func (r *rig) TimerFreqHz() int { return r.timerFreq }

func buildRig(cfg kconfig.Config) (*rig, error) {
	dir, err := os.MkdirTemp("", "kctl-*")
	if err != nil {
		return nil, err
	}

	pages := pagepool.New(4096)

	policy := sched.PolicyPriority
	if cfg.MLFQS {
		policy = sched.PolicyMLFQS
	}
	k, main := kernel.New(kernel.Config{
		Policy:    policy,
		TimeSlice: cfg.TimeSlice,
		TimerFreq: cfg.TimerFreq,
		Pages:     pages,
	})
	k.Start()

	disk, err := blockdev.Create(filepath.Join(dir, "swap.img"), cfg.SwapSectors)
	if err != nil {
		return nil, err
	}
	sys := vm.NewSystem(k, pages, disk)

	store, err := vfstore.Open(filepath.Join(dir, "files"))
	if err != nil {
		return nil, err
	}

	api := syscallapi.NewVFStoreAPI(k, sys, store, func() vm.MMU { return softmmu.Create() }, int(cfg.StackLimit))
	api.Bootstrap(main)

	klog.Infof("kctl: rig booted (policy=%v timeslice=%d timerfreq=%d)", policy, cfg.TimeSlice, cfg.TimerFreq)

	return &rig{k: k, main: main, sys: sys, api: api, disk: disk, store: store, dir: dir, timerFreq: cfg.TimerFreq}, nil
}

func (r *rig) Close() {
	r.disk.Close()
	os.RemoveAll(r.dir)
}
