package nanolog

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Stats is a best-effort snapshot of the compression loop's counters: it
// is not consistent across fields under a running compressor, only
// individually atomic per field.
type Stats struct {
	SessionID string

	EventsProcessed              uint64
	TotalBytesRead               uint64
	TotalBytesWritten            uint64
	PadBytesWritten              uint64
	NumWritesCompleted           uint64
	WriteErrors                  uint64
	CyclesCompressing            uint64
	CyclesScanningAndCompressing uint64
	CyclesAioAndFsync            uint64
	CyclesAwake                  uint64
}

// PrintStats dumps the compression loop's counters. It fdatasyncs the
// output file immediately before computing its report, via the output
// engine, so the byte counts it prints reflect durable state.
func (rt *Runtime) PrintStats() Stats {
	_ = rt.engine.Sync()

	snap := rt.loop.Counters.Load()
	stats := Stats{
		SessionID:                    rt.sessionID,
		EventsProcessed:              snap.EventsProcessed,
		TotalBytesRead:               snap.TotalBytesRead,
		TotalBytesWritten:            snap.TotalBytesWritten,
		PadBytesWritten:              snap.PadBytesWritten,
		NumWritesCompleted:           snap.NumWritesCompleted,
		WriteErrors:                  rt.engine.WriteErrors(),
		CyclesCompressing:            snap.CyclesCompressing,
		CyclesScanningAndCompressing: snap.CyclesScanningAndCompressing,
		CyclesAioAndFsync:            snap.CyclesAioAndFsync,
		CyclesAwake:                  snap.CyclesAwake,
	}
	renderStats(stats)
	return stats
}

// renderStats writes a human-readable report to stdout, colorized on a
// real terminal and plain otherwise, gated by go-colorable/go-isatty.
func renderStats(s Stats) {
	w := colorable.NewColorableStdout()
	fd := os.Stdout.Fd()

	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		fmt.Fprintf(w, "\x1b[1mnanolog session %s\x1b[0m\n", s.SessionID)
		fmt.Fprintf(w, "  events processed:   \x1b[32m%d\x1b[0m\n", s.EventsProcessed)
		fmt.Fprintf(w, "  bytes read/written: %d / %d (pad %d)\n", s.TotalBytesRead, s.TotalBytesWritten, s.PadBytesWritten)
		fmt.Fprintf(w, "  writes completed:   %d\x1b[31m%s\x1b[0m\n", s.NumWritesCompleted, errorSuffix(s.WriteErrors))
		return
	}

	fmt.Fprintf(w, "nanolog session %s\n", s.SessionID)
	fmt.Fprintf(w, "  events processed:   %d\n", s.EventsProcessed)
	fmt.Fprintf(w, "  bytes read/written: %d / %d (pad %d)\n", s.TotalBytesRead, s.TotalBytesWritten, s.PadBytesWritten)
	fmt.Fprintf(w, "  writes completed:   %d%s\n", s.NumWritesCompleted, errorSuffix(s.WriteErrors))
}

func errorSuffix(writeErrors uint64) string {
	if writeErrors == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d errors)", writeErrors)
}
