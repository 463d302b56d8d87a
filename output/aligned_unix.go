//go:build !windows

package output

import (
	"os"

	"golang.org/x/sys/unix"
)

// allocAligned returns a page-aligned buffer, which is aligned well past
// the 512-byte boundary direct I/O requires for its buffer address. An
// anonymous mapping gives that alignment guarantee where a plain heap
// allocation would not.
func allocAligned(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func freeAligned(buf []byte) {
	if buf == nil {
		return
	}
	_ = unix.Munmap(buf)
}

// OpenFile opens path with O_CREAT|O_WRONLY|O_TRUNC, adding O_DIRECT when
// directIO is requested. Direct I/O requires golang.org/x/sys/unix.Open —
// os.OpenFile has no portable way to add O_DIRECT.
func OpenFile(path string, directIO bool) (*os.File, error) {
	flags := unix.O_CREAT | unix.O_WRONLY | unix.O_TRUNC
	if directIO {
		flags |= unix.O_DIRECT
	}
	fd, err := unix.Open(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
