package compressor

import "sync/atomic"

// Counters are the per-iteration observability counters for the
// compression loop. They are mutated only by the loop and snapshotted on
// demand by PrintStats; that snapshot is best-effort, not a consistent
// point-in-time view across fields, so each field is its own atomic rather
// than being covered by one lock.
type Counters struct {
	EventsProcessed              atomic.Uint64
	TotalBytesRead               atomic.Uint64
	TotalBytesWritten            atomic.Uint64
	PadBytesWritten              atomic.Uint64
	CyclesCompressing            atomic.Uint64
	CyclesScanningAndCompressing atomic.Uint64
	CyclesAioAndFsync            atomic.Uint64
	CyclesAwake                  atomic.Uint64
	NumWritesCompleted           atomic.Uint64
}

// Snapshot is a plain-value copy of Counters, safe to format or compare.
type Snapshot struct {
	EventsProcessed              uint64
	TotalBytesRead               uint64
	TotalBytesWritten            uint64
	PadBytesWritten              uint64
	CyclesCompressing            uint64
	CyclesScanningAndCompressing uint64
	CyclesAioAndFsync            uint64
	CyclesAwake                  uint64
	NumWritesCompleted           uint64
}

// Load takes a best-effort snapshot of c.
func (c *Counters) Load() Snapshot {
	return Snapshot{
		EventsProcessed:              c.EventsProcessed.Load(),
		TotalBytesRead:               c.TotalBytesRead.Load(),
		TotalBytesWritten:            c.TotalBytesWritten.Load(),
		PadBytesWritten:              c.PadBytesWritten.Load(),
		CyclesCompressing:            c.CyclesCompressing.Load(),
		CyclesScanningAndCompressing: c.CyclesScanningAndCompressing.Load(),
		CyclesAioAndFsync:            c.CyclesAioAndFsync.Load(),
		CyclesAwake:                  c.CyclesAwake.Load(),
		NumWritesCompleted:           c.NumWritesCompleted.Load(),
	}
}
