// Package nanolog is the public programmatic interface of the core: Init,
// Preallocate, a Producer handle standing in for a thread-local staging
// buffer, Sync, SetLogFile, PrintStats, and Shutdown. It wires together
// the staging, output, compressor, and codec packages behind a Runtime
// value the caller owns explicitly, rather than an implicit global with a
// thread-local companion.
package nanolog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Jacke/NanoLog/clock"
	"github.com/Jacke/NanoLog/codec"
	"github.com/Jacke/NanoLog/compressor"
	"github.com/Jacke/NanoLog/config"
	"github.com/Jacke/NanoLog/output"
	"github.com/Jacke/NanoLog/staging"
)

// Runtime is one live instance of the core: a registry of staging
// buffers, an output engine writing to one file, and the compression
// loop draining between them. Model its lifetime with an explicit
// Init/Shutdown pair rather than package-level init magic, so log-file
// switch and shutdown are race-free.
type Runtime struct {
	// switchMu serializes SetLogFile and Shutdown against each other.
	// It is never touched by the producer fast path.
	switchMu sync.Mutex

	cfg   config.Config
	table codec.Table
	clock clock.Source

	registry    *staging.Registry
	producerSeq atomic.Int64

	// The following are replaced wholesale on every SetLogFile switch.
	file      *os.File
	engine    *output.Engine
	loop      *compressor.Loop
	sessionID string
}

// Init opens the output file, allocates both output buffers, and starts
// the compression thread. Table is the codec table records will be
// compressed through; pass codec.ReferenceTable{} if the embedder has no
// preprocessor-generated table yet. Failure at any step is unrecoverable
// and carries a captured stack trace.
func Init(cfg config.Config, table codec.Table) (*Runtime, error) {
	return initWithClock(cfg, table, clock.Monotonic)
}

func initWithClock(cfg config.Config, table codec.Table, clk clock.Source) (*Runtime, error) {
	file, err := output.OpenFile(cfg.OutputPath, cfg.DirectIO)
	if err != nil {
		return nil, fatal(wrapIoOpen(cfg.OutputPath, err))
	}

	engine, err := output.New(file, cfg.OutputBufferSize, output.Options{
		Async:    cfg.Async,
		DirectIO: cfg.DirectIO,
	})
	if err != nil {
		file.Close()
		return nil, fatal(err)
	}

	rt := &Runtime{
		cfg:       cfg,
		table:     table,
		clock:     clk,
		registry:  staging.NewRegistry(),
		file:      file,
		engine:    engine,
		sessionID: uuid.New().String(),
	}

	idleWait := time.Duration(cfg.IdleWaitMicros) * time.Microsecond
	rt.loop = compressor.New(rt.registry, rt.engine, rt.table, rt.clock, idleWait)
	go rt.loop.Run()

	return rt, nil
}

// Preallocate eagerly creates and registers a Producer's staging buffer
// so a caller can pay the allocation cost before entering a
// latency-sensitive section.
func (rt *Runtime) Preallocate() *Producer {
	id := rt.producerSeq.Add(1)
	buf := staging.New(id, rt.cfg.StagingBufferSize)
	rt.registry.Register(buf)
	return &Producer{buf: buf}
}

// Sync is a barrier: every event committed before Sync was called is
// compressed and durable by the time it returns. Must not be called from
// within the compression loop itself.
func (rt *Runtime) Sync() error {
	rt.loop.Sync()
	return rt.engine.Sync()
}

// SetLogFile performs the log-file switch: open the new file, sync, stop
// the current compression thread, close the old file, and restart on the
// new one. It is serialized against other SetLogFile and Shutdown calls by
// switchMu; Sync and PrintStats do not take switchMu and must not run
// concurrently with it. Producers may keep committing throughout since the
// registry and its buffers are untouched by the switch.
func (rt *Runtime) SetLogFile(path string) error {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()

	if err := probeOpenable(path); err != nil {
		return wrapIoOpen(path, err)
	}

	// Establish the replacement file and engine before touching the
	// current ones: if either step fails, the existing log file and
	// compression thread must remain intact and running.
	newFile, err := output.OpenFile(path, rt.cfg.DirectIO)
	if err != nil {
		return wrapIoOpen(path, err)
	}
	newEngine, err := output.New(newFile, rt.cfg.OutputBufferSize, output.Options{
		Async:    rt.cfg.Async,
		DirectIO: rt.cfg.DirectIO,
	})
	if err != nil {
		newFile.Close()
		return wrapIoOpen(path, err)
	}

	rt.loop.Sync()
	rt.loop.RequestExit()
	<-rt.loop.Done()
	rt.engine.Close()
	rt.file.Close()

	rt.file = newFile
	rt.engine = newEngine
	rt.sessionID = uuid.New().String()
	rt.restartLoop()
	return nil
}

func (rt *Runtime) restartLoop() {
	idleWait := time.Duration(rt.cfg.IdleWaitMicros) * time.Microsecond
	rt.loop = compressor.New(rt.registry, rt.engine, rt.table, rt.clock, idleWait)
	go rt.loop.Run()
}

// probeOpenable checks that path is safe to switch to: if it already
// exists, the caller must have read/write permission on it before the
// switch tears down the current file.
func probeOpenable(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

// Shutdown syncs, stops the compression thread, waits for any outstanding
// async write, and releases both output buffers and the file. The Runtime
// must not be used afterward.
func (rt *Runtime) Shutdown() error {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()

	rt.loop.Sync()
	rt.loop.RequestExit()
	<-rt.loop.Done()

	engineErr := rt.engine.Close()
	fileErr := rt.file.Close()
	if engineErr != nil {
		return engineErr
	}
	return fileErr
}
