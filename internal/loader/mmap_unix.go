//go:build unix

package loader

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile memory-maps a file read-only. Entries are read front to back, so
// the kernel is told to expect sequential access.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	data, err := unix.Mmap(
		int(f.Fd()), //nolint:gosec // G115: file descriptor fits in int
		0,
		int(size), //nolint:gosec // G115: file size validated by caller
		unix.PROT_READ,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, err
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
	return data, nil
}

// munmapFile unmaps a memory-mapped file.
func munmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
