//go:build !windows

package output

import "golang.org/x/sys/unix"

func fdatasync(e *Engine) error {
	return unix.Fdatasync(int(e.file.Fd()))
}
