package kernel

import "nanokernel.dev/nanokernel/internal/pagepool"

// PageAllocator is the collaborator interface spec.md §6 names for
// get_page(flags)/free_page(kva): a source of 4 KiB frames addressed
// by kernel virtual address. internal/pagepool.Pool is the reference
// implementation; package vm depends only on this interface, never on
// pagepool directly, so an alternate allocator (a real mmap-backed
// arena, say) can be substituted without touching vm.
type PageAllocator interface {
	GetPage(flags pagepool.Flags) (uintptr, bool)
	FreePage(kva uintptr)
	Bytes(kva uintptr) []byte
}

// PageAllocator returns the kernel's bound frame allocator, so package
// vm can be constructed from a *Kernel without reaching into its
// unexported fields.
func (k *Kernel) PageAllocator() PageAllocator { return k.pages }
