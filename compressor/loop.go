// Package compressor implements the compression loop: the single
// background goroutine that drains staging buffers in round-robin order,
// delta-encodes and compresses their records through a codec.Table, and
// drives the output engine.
package compressor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jacke/NanoLog/clock"
	"github.com/Jacke/NanoLog/codec"
	"github.com/Jacke/NanoLog/output"
	"github.com/Jacke/NanoLog/staging"
)

// DefaultIdleWait is the bounded timeout the loop polls with when it finds
// no work: producers never notify on commit, so the consumer must poll.
const DefaultIdleWait = 200 * time.Microsecond

// Loop is the compression thread's state.
type Loop struct {
	registry *staging.Registry
	engine   *output.Engine
	table    codec.Table
	clock    clock.Source
	idleWait time.Duration

	cursor        int
	lastFmtID     uint32
	lastTimestamp uint64

	condMu           sync.Mutex
	workAdded        *sync.Cond
	hintQueueEmptied *sync.Cond

	syncRequested atomic.Bool
	shouldExit    atomic.Bool

	Counters Counters

	done chan struct{}
}

// New creates a Loop. Call Run in its own goroutine to start it.
func New(registry *staging.Registry, engine *output.Engine, table codec.Table, clk clock.Source, idleWait time.Duration) *Loop {
	if idleWait <= 0 {
		idleWait = DefaultIdleWait
	}
	l := &Loop{
		registry: registry,
		engine:   engine,
		table:    table,
		clock:    clk,
		idleWait: idleWait,
		done:     make(chan struct{}),
	}
	l.workAdded = sync.NewCond(&l.condMu)
	l.hintQueueEmptied = sync.NewCond(&l.condMu)
	return l
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// RequestExit signals the loop to stop at the top of its next iteration
// and wakes it if it is currently idle.
func (l *Loop) RequestExit() {
	l.shouldExit.Store(true)
	l.notifyWorkAdded()
}

// Sync is a barrier: every event committed before Sync was called has
// been through the compression loop by the time Sync returns. Must not be
// called from the compression loop's own goroutine.
func (l *Loop) Sync() {
	l.syncRequested.Store(true)
	l.notifyWorkAdded()

	l.condMu.Lock()
	for l.syncRequested.Load() {
		l.hintQueueEmptied.Wait()
	}
	l.condMu.Unlock()
}

func (l *Loop) notifyWorkAdded() {
	l.condMu.Lock()
	l.workAdded.Broadcast()
	l.condMu.Unlock()
}

// Run is the compression thread's main loop. It returns once RequestExit
// has been observed and any outstanding write has been awaited.
func (l *Loop) Run() {
	defer close(l.done)

	cyclesAwakeStart := l.clock.Now()

	for !l.shouldExit.Load() {
		out := l.engine.CompressingBuffer()
		outPos := l.scanAndCompress(out)

		if outPos == 0 {
			cyclesAwakeStart = l.idleOrLoopAgain(cyclesAwakeStart)
			continue
		}

		ioStart := l.clock.Now()
		padBytes, _ := l.engine.Submit(outPos) // engine already logs/counts errors
		l.Counters.PadBytesWritten.Add(uint64(padBytes))
		l.Counters.TotalBytesWritten.Add(uint64(outPos + padBytes))
		l.Counters.CyclesAioAndFsync.Add(uint64(l.clock.Now() - ioStart))
		l.Counters.NumWritesCompleted.Store(l.engine.NumWritesCompleted())
	}

	l.engine.Drain()
	l.Counters.CyclesAwake.Add(uint64(l.clock.Now() - cyclesAwakeStart))
}

// scanAndCompress performs one round-robin pass over the registry,
// draining as many whole records as fit into out. It returns the number
// of bytes written to out.
func (l *Loop) scanAndCompress(out []byte) int {
	start := l.clock.Now()
	defer func() {
		l.Counters.CyclesScanningAndCompressing.Add(uint64(l.clock.Now() - start))
	}()

	outPos := 0
	workFound := false
	outputFull := false

	l.registry.Lock()
	defer l.registry.Unlock()

	i := l.cursor
	for !outputFull && !l.shouldExit.Load() && l.registry.Len() > 0 {
		sb := l.registry.At(i)
		peeked := sb.Peek()

		if len(peeked) > 0 {
			workFound = true
			l.registry.Unlock()

			n, full := l.drainBuffer(sb, peeked, out, &outPos)
			l.Counters.TotalBytesRead.Add(uint64(n))
			if full {
				l.cursor = i
				outputFull = true
			}

			l.registry.Lock()
		} else if sb.CanDelete() {
			l.cursor = l.registry.Retire(i, l.cursor)
			if l.registry.Len() == 0 {
				break
			}
			if i >= l.registry.Len() {
				i = 0
			}
			continue
		}

		if l.registry.Len() == 0 {
			break
		}
		i = (i + 1) % l.registry.Len()

		if i == l.cursor {
			if !workFound {
				break
			}
			workFound = false
		}
	}

	return outPos
}

// drainBuffer compresses whole records out of peeked (a snapshot of sb's
// readable region) into out starting at *outPos, consuming each record
// from sb as it goes. It stops and reports full=true if the next record's
// worst-case size would reach or overflow the end of out.
func (l *Loop) drainBuffer(sb *staging.Buffer, peeked []byte, out []byte, outPos *int) (bytesRead int, full bool) {
	compressStart := l.clock.Now()
	defer func() {
		l.Counters.CyclesCompressing.Add(uint64(l.clock.Now() - compressStart))
	}()

	readable := peeked
	for len(readable) > 0 {
		h, ok := codec.ParseHeader(readable)
		if !ok || int(h.EntrySize) > len(readable) {
			break
		}

		worst := int(h.WorstCaseSize())
		if *outPos+worst >= len(out) {
			return len(peeked) - len(readable), true
		}

		record := readable[:h.EntrySize]

		*outPos += l.table.CompressMetadata(record, out[*outPos:], l.lastTimestamp, l.lastFmtID)
		l.lastFmtID = h.FmtID
		l.lastTimestamp = h.Timestamp

		*outPos += l.table.Compress(h.FmtID, record, out[*outPos:])

		l.Counters.EventsProcessed.Add(1)
		sb.Consume(int(h.EntrySize))
		readable = readable[h.EntrySize:]
	}

	return len(peeked) - len(readable), false
}

// idleOrLoopAgain runs when a pass produced no output: it either satisfies
// an outstanding sync (one more full pass) or signals hintQueueEmptied and
// sleeps, bounded, waiting for more work.
func (l *Loop) idleOrLoopAgain(cyclesAwakeStart uint64) uint64 {
	l.condMu.Lock()
	defer l.condMu.Unlock()

	if l.syncRequested.Load() {
		l.syncRequested.Store(false)
		return cyclesAwakeStart
	}

	l.Counters.CyclesAwake.Add(uint64(l.clock.Now() - cyclesAwakeStart))
	// Await any write still in flight so sync waiters are only released
	// once everything handed to the engine has reached the file.
	l.engine.Drain()
	l.hintQueueEmptied.Broadcast()
	l.waitForWorkLocked()
	return l.clock.Now()
}

// waitForWorkLocked waits on workAdded, bounded by idleWait, since the
// consumer polls rather than relying on producers to notify it. condMu
// must be held.
func (l *Loop) waitForWorkLocked() {
	timer := time.AfterFunc(l.idleWait, func() {
		l.condMu.Lock()
		l.workAdded.Broadcast()
		l.condMu.Unlock()
	})
	l.workAdded.Wait()
	timer.Stop()
}
