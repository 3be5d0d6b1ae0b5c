//go:build unix

package mmfile

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapAnon maps size bytes (rounded up to whole pages) of zeroed, private,
// read-write memory. The returned slice has the requested length; cleanup
// unmaps the whole mapping.
func MapAnon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return []byte{}, func() error { return nil }, nil
	}
	mapped := roundUp(size)
	if mapped < size {
		return nil, nil, fmt.Errorf("mmfile: mapping too large (%d bytes)", size)
	}
	data, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmfile: mmap %d bytes: %w", mapped, err)
	}
	cleanup := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		data = nil
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data[:size], cleanup, nil
}
