package nanolog

import (
	"sync/atomic"

	"github.com/Jacke/NanoLog/codec"
	"github.com/Jacke/NanoLog/config"
)

// defaultRuntime holds the process-wide Runtime as an atomic-swap
// singleton, using atomic.Pointer now that the module targets a Go
// version where the generic form is available.
var defaultRuntime atomic.Pointer[Runtime]

// InitDefault calls Init and installs the result as the process-wide
// default Runtime, for embedders that don't need more than one.
func InitDefault(cfg config.Config, table codec.Table) error {
	rt, err := Init(cfg, table)
	if err != nil {
		return err
	}
	defaultRuntime.Store(rt)
	return nil
}

// Default returns the process-wide Runtime installed by InitDefault. It
// panics if InitDefault has not been called, since every operation below
// requires a live output file and compression thread.
func Default() *Runtime {
	rt := defaultRuntime.Load()
	if rt == nil {
		panic("nanolog: InitDefault was never called")
	}
	return rt
}

// Preallocate delegates to Default().
func Preallocate() *Producer { return Default().Preallocate() }

// Sync delegates to Default().
func Sync() error { return Default().Sync() }

// SetLogFile delegates to Default().
func SetLogFile(path string) error { return Default().SetLogFile(path) }

// PrintStats delegates to Default().
func PrintStats() Stats { return Default().PrintStats() }

// Shutdown delegates to Default() and clears the default Runtime.
func Shutdown() error {
	rt := Default()
	defaultRuntime.Store(nil)
	return rt.Shutdown()
}
