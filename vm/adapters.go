package vm

// Adapters wrapping the concrete reference collaborators in
// internal/vfstore onto the vm.FileSystem/vm.File interfaces,
// mirroring the teacher's own pkg/tcpip/adapters/gonet pattern of a
// small adapter package bridging a concrete transport onto a narrow
// interface. internal/blockdev.File and internal/softmmu.PML4 satisfy
// SwapDisk and MMU directly and need no adapter.

import "nanokernel.dev/nanokernel/internal/vfstore"

// vfstoreFS adapts a *vfstore.Store onto FileSystem.
type vfstoreFS struct{ store *vfstore.Store }

// NewVFStoreFileSystem wraps store as a vm.FileSystem.
func NewVFStoreFileSystem(store *vfstore.Store) FileSystem {
	return vfstoreFS{store: store}
}

func (a vfstoreFS) Open(name string) (File, error) {
	f, err := a.store.Open(name)
	if err != nil {
		return nil, err
	}
	return vfstoreFile{f: f}, nil
}

// AdaptFile wraps a single already-open *vfstore.File as a File,
// for callers (mmap) that hold a handle directly rather than going
// through a FileSystem.Open call.
func AdaptFile(f *vfstore.File) File { return vfstoreFile{f: f} }

// vfstoreFile adapts a *vfstore.File onto File.
type vfstoreFile struct{ f *vfstore.File }

func (a vfstoreFile) Reopen() (File, error) {
	f2, err := a.f.Reopen()
	if err != nil {
		return nil, err
	}
	return vfstoreFile{f: f2}, nil
}

func (a vfstoreFile) Close() error                        { return a.f.Close() }
func (a vfstoreFile) Length() (int64, error)               { return a.f.Length() }
func (a vfstoreFile) Read(buf []byte) (int, error)         { return a.f.Read(buf) }
func (a vfstoreFile) ReadAt(buf []byte, off int64) (int, error) { return a.f.ReadAt(buf, off) }
func (a vfstoreFile) Write(buf []byte) (int, error)        { return a.f.Write(buf) }
func (a vfstoreFile) WriteAt(buf []byte, off int64) (int, error) { return a.f.WriteAt(buf, off) }
func (a vfstoreFile) Seek(off int64)                        { a.f.Seek(off) }
func (a vfstoreFile) Tell() int64                           { return a.f.Tell() }
