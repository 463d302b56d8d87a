//go:build windows

package output

func fdatasync(e *Engine) error {
	return e.file.Sync()
}
