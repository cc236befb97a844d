package vm

// SwapDisk is the sector-addressable block device collaborator,
// spec.md §6: "size() in sectors, read(idx, buf), write(idx, buf)."
// internal/blockdev.File implements this directly.
type SwapDisk interface {
	Size() int
	Read(idx int, buf []byte) error
	Write(idx int, buf []byte) error
}

// MMU is the page-map-root collaborator, spec.md §6's pml4_* family.
// internal/softmmu.PML4 implements this directly.
type MMU interface {
	Activate()
	Destroy()
	GetPage(va uintptr) (uintptr, bool)
	SetPage(va, kva uintptr, writable bool)
	ClearPage(va uintptr)
	IsDirty(va uintptr) bool
	IsAccessed(va uintptr) bool
	SetDirty(va uintptr, bit bool)
	SetAccessed(va uintptr, bit bool)
}

// File is an open file-system handle, spec.md §6: "open, close,
// reopen, length, read, read_at, write, write_at, seek, tell."
type File interface {
	Reopen() (File, error)
	Close() error
	Length() (int64, error)
	Read(buf []byte) (int, error)
	ReadAt(buf []byte, off int64) (int, error)
	Write(buf []byte) (int, error)
	WriteAt(buf []byte, off int64) (int, error)
	Seek(off int64)
	Tell() int64
}

// FileSystem opens named files, serialized (in the reference
// implementation) behind a single global advisory lock, spec.md §5.
type FileSystem interface {
	Open(name string) (File, error)
}
