// Package output implements the output engine: a double-buffered writer
// that submits one aligned buffer's worth of compressed frames to disk
// while the compression loop fills the other, optionally padding to the
// 512-byte alignment direct I/O requires.
package output

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Options configures an Engine.
type Options struct {
	// Async selects asynchronous submission: Submit returns immediately
	// and the write completes in the background, awaited by the next
	// Submit or by Drain. When false, Submit blocks until the write
	// completes.
	Async bool

	// DirectIO must match whatever the underlying *os.File was opened
	// with. When true, Submit pads the tail of the buffer with zeros so
	// every write length is a multiple of 512 bytes.
	DirectIO bool
}

// Engine owns the two output buffers, the destination file descriptor, and
// the in-flight write, if any.
type Engine struct {
	file *os.File
	opts Options

	bufs      [2][]byte
	activeIdx int

	pending        chan error
	hasOutstanding bool

	writeErrors        atomic.Uint64
	numWritesCompleted atomic.Uint64
}

// New creates an Engine writing to file, with two aligned buffers of
// bufferSize bytes each. bufferSize should be a power of two, at least
// 1 MiB.
func New(file *os.File, bufferSize int, opts Options) (*Engine, error) {
	a, err := allocAligned(bufferSize)
	if err != nil {
		return nil, fmt.Errorf("output: %w", ErrAllocation)
	}
	b, err := allocAligned(bufferSize)
	if err != nil {
		return nil, fmt.Errorf("output: %w", ErrAllocation)
	}

	return &Engine{
		file: file,
		opts: opts,
		bufs: [2][]byte{a, b},
	}, nil
}

// CompressingBuffer returns the buffer the compression loop should
// currently be filling.
func (e *Engine) CompressingBuffer() []byte {
	return e.bufs[e.activeIdx]
}

// Submit schedules a write of payloadLen bytes from the current
// compressing buffer. In direct-I/O mode the tail is zero-padded up to the
// next multiple of 512 bytes first; the returned padBytes never counts as
// event bytes. Any previous asynchronous write is awaited before the new
// one is issued.
func (e *Engine) Submit(payloadLen int) (padBytes int, err error) {
	if e.hasOutstanding {
		if derr := e.Drain(); derr != nil {
			// Drain already logged and counted; keep going with the new
			// write regardless.
			_ = derr
		}
	}

	buf := e.bufs[e.activeIdx]
	writeLen := payloadLen

	if e.opts.DirectIO {
		if rem := writeLen % 512; rem != 0 {
			padBytes = 512 - rem
			for i := 0; i < padBytes; i++ {
				buf[writeLen+i] = 0
			}
			writeLen += padBytes
		}
	}

	data := buf[:writeLen]

	if e.opts.Async {
		e.pending = make(chan error, 1)
		e.hasOutstanding = true
		go func() {
			_, werr := e.file.Write(data)
			e.pending <- werr
		}()
		// Swap roles: the compressor fills the other buffer next.
		e.activeIdx = 1 - e.activeIdx
		return padBytes, nil
	}

	_, werr := e.file.Write(data)
	e.numWritesCompleted.Add(1)
	if werr != nil {
		e.writeErrors.Add(1)
		fmt.Fprintf(os.Stderr, "nanolog: output write failed: %v\n", werr)
	}
	return padBytes, werr
}

// Drain blocks until no write is outstanding. Used before buffer
// switches, log-file switches, and shutdown.
func (e *Engine) Drain() error {
	if !e.hasOutstanding {
		return nil
	}
	err := <-e.pending
	e.hasOutstanding = false
	e.numWritesCompleted.Add(1)
	if err != nil {
		e.writeErrors.Add(1)
		fmt.Fprintf(os.Stderr, "nanolog: async output write failed: %v\n", err)
	}
	return err
}

// WriteErrors returns the number of write failures observed so far.
func (e *Engine) WriteErrors() uint64 {
	return e.writeErrors.Load()
}

// NumWritesCompleted returns the number of writes (sync or async) that
// have finished, successfully or not.
func (e *Engine) NumWritesCompleted() uint64 {
	return e.numWritesCompleted.Load()
}

// Sync flushes the destination file's data to durable storage. PrintStats
// calls this before computing its report, so the counters it reports
// reflect what has actually reached disk.
func (e *Engine) Sync() error {
	return fdatasync(e)
}

// Close drains any outstanding write and releases the output buffers.
func (e *Engine) Close() error {
	err := e.Drain()
	freeAligned(e.bufs[0])
	freeAligned(e.bufs[1])
	return err
}
