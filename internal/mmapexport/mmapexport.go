//go:build unix

// Package mmapexport writes and reads recordb export blobs through an
// mmap'd file instead of os.File read/write calls. Both directions
// still work on a whole in-memory []byte: WriteFile takes the complete
// blob and ReadFile returns a complete copy of the file.
package mmapexport

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// WriteFile creates (or truncates) path, sizes it to len(data), and
// copies data into it through an mmap'd region.
func WriteFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("mmapexport: opening %q: %w", path, err)
	}
	defer f.Close()

	if len(data) == 0 {
		return nil
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("mmapexport: sizing %q: %w", path, err)
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmapexport: mapping %q: %w", path, err)
	}
	defer unix.Munmap(mapping)

	copy(mapping, data)
	return unix.Msync(mapping, unix.MS_SYNC)
}

// ReadFile maps path read-only and returns a copy of its contents.
// The mapping is unmapped before ReadFile returns, so the returned
// slice is an independent, ordinarily-GC'd allocation like any other
// []byte — callers needing a true zero-copy view should mmap directly.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmapexport: opening %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmapexport: stat %q: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmapexport: mapping %q: %w", path, err)
	}
	defer unix.Munmap(mapping)

	out := make([]byte, size)
	copy(out, mapping)
	return out, nil
}
