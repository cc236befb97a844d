// Package vfstore is the reference FileSystem collaborator spec.md §6
// treats as an opaque byte-addressable object store. Every operation
// is serialized behind a single process-wide advisory lock, which is
// the literal mechanism spec.md §5 calls "a single global file-system
// mutex held across each user-visible file operation" — gofrs/flock
// gives that guarantee even across re-exec'd copies of kctl, not just
// goroutines within one process.
package vfstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Store roots a flat collection of named byte-addressable files under
// a directory.
type Store struct {
	dir  string
	lock *flock.Flock
}

// Open roots a Store at dir, creating it if necessary.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".vfstore.lock")),
	}, nil
}

// File is an open handle, mirroring spec.md §6's file-system
// interface: open/close/reopen/length/read/read_at/write/write_at/
// seek/tell.
type File struct {
	store *Store
	name  string
	mu    sync.Mutex
	f     *os.File
	pos   int64
}

// Open opens name for read/write, creating it if absent.
func (s *Store) Open(name string) (*File, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{store: s, name: name, f: f}, nil
}

// Reopen returns an independent handle onto the same underlying file
// with its own cursor, used by mmap (each mapping owns its own cursor)
// and by fork (FILE pages share the underlying file via reopen).
func (f *File) Reopen() (*File, error) {
	return f.store.Open(f.name)
}

// Close releases the handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}

// Length returns the file's current size in bytes.
func (f *File) Length() (int64, error) {
	f.store.lock.Lock()
	defer f.store.lock.Unlock()
	fi, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Read reads into buf at the current cursor and advances it.
func (f *File) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store.lock.Lock()
	defer f.store.lock.Unlock()
	n, err := f.f.ReadAt(buf, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadAt reads into buf at off without disturbing the cursor.
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	f.store.lock.Lock()
	defer f.store.lock.Unlock()
	return f.f.ReadAt(buf, off)
}

// Write writes buf at the current cursor and advances it.
func (f *File) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store.lock.Lock()
	defer f.store.lock.Unlock()
	n, err := f.f.WriteAt(buf, f.pos)
	f.pos += int64(n)
	return n, err
}

// WriteAt writes buf at off without disturbing the cursor — the path
// used for mmap write-back of a dirty page's read_bytes at its stored
// offset.
func (f *File) WriteAt(buf []byte, off int64) (int, error) {
	f.store.lock.Lock()
	defer f.store.lock.Unlock()
	return f.f.WriteAt(buf, off)
}

// Seek repositions the cursor.
func (f *File) Seek(off int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = off
}

// Tell returns the current cursor position.
func (f *File) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}
