// Package blockdev is the reference swap-disk collaborator: a
// sector-addressable 512-byte block device backed by a sparse file on
// the host, the Go-side stand-in for the architecture's swap partition.
package blockdev

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
)

// SectorSize is the fixed sector size spec.md §4.4 assumes (one page
// is 8 sectors).
const SectorSize = 512

// File is a swap disk backed by a single host file, addressed with
// positioned pread/pwrite so concurrent sector access never disturbs
// a shared file offset.
type File struct {
	f           *os.File
	sectors     int
	injectFault func(sector int) bool // test hook: simulate a transient write failure
}

// Create opens (creating if necessary) a swap-disk file with room for
// n sectors.
func Create(path string, sectors int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(sectors) * SectorSize); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, sectors: sectors}, nil
}

// Size reports the disk's capacity in sectors.
func (d *File) Size() int { return d.sectors }

// Close releases the underlying host file.
func (d *File) Close() error { return d.f.Close() }

// SetFaultInjector installs a hook tests use to force a transient
// write error on a given sector, exercising the backoff retry below.
func (d *File) SetFaultInjector(fn func(sector int) bool) { d.injectFault = fn }

// Read reads sector idx into buf, which must be exactly SectorSize
// bytes.
func (d *File) Read(idx int, buf []byte) error {
	if err := d.checkBounds(idx, buf); err != nil {
		return err
	}
	n, err := unix.Pread(int(d.f.Fd()), buf, int64(idx)*SectorSize)
	if err != nil {
		return err
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short read of %d bytes from sector %d", n, idx)
	}
	return nil
}

// Write writes buf to sector idx. Transient failures (from the test
// fault injector, or a short write the OS can legitimately return for
// a regular file) are retried with exponential backoff, capped at a
// handful of attempts: real swap disks occasionally need a retry on a
// busy device queue, and this is the one place spec.md's eviction path
// has for it.
func (d *File) Write(idx int, buf []byte) error {
	if err := d.checkBounds(idx, buf); err != nil {
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 0

	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if d.injectFault != nil && d.injectFault(idx) {
			lastErr = fmt.Errorf("blockdev: injected fault on sector %d", idx)
		} else {
			n, err := unix.Pwrite(int(d.f.Fd()), buf, int64(idx)*SectorSize)
			switch {
			case err != nil:
				lastErr = err
			case n != SectorSize:
				lastErr = fmt.Errorf("blockdev: short write of %d bytes to sector %d", n, idx)
			default:
				return nil
			}
		}
		time.Sleep(b.NextBackOff())
	}
	return fmt.Errorf("blockdev: write to sector %d failed after %d attempts: %w", idx, maxAttempts, lastErr)
}

func (d *File) checkBounds(idx int, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", SectorSize, len(buf))
	}
	if idx < 0 || idx >= d.sectors {
		return fmt.Errorf("blockdev: sector %d out of range [0,%d)", idx, d.sectors)
	}
	return nil
}
