// Package staging implements the per-producer-thread staging buffer: a
// single-producer/single-consumer byte ring that lets one producer goroutine
// reserve space and commit an event record without ever taking a lock on
// its fast path, plus the registry that tracks the set of live buffers for
// the compression loop to drain.
//
// The ring keeps "full" and "empty" distinguishable by never letting the
// producer catch up to the consumer exactly: a reservation only succeeds
// when free space is strictly greater than the request. On wrap, the
// producer publishes the high-water mark of the old region before resetting
// its position to zero, so a consumer that has just observed the wrap can
// safely drain up to that mark.
package staging

import (
	"runtime"
	"sync/atomic"
)

// cacheLineSize pads the hot atomics onto separate cache lines so the
// producer and consumer never false-share a line while spinning on each
// other's position.
const cacheLineSize = 64

// Buffer is a fixed-capacity single-producer/single-consumer byte ring. The
// zero value is not usable; construct with New.
type Buffer struct {
	_ [cacheLineSize]byte

	// producerPos is written only by the producer, with release semantics,
	// and read by the consumer with acquire semantics.
	producerPos atomic.Uint64
	_           [cacheLineSize - 8]byte

	// consumerPos is written only by the consumer, with release semantics,
	// and read by the producer with acquire semantics.
	consumerPos atomic.Uint64
	_           [cacheLineSize - 8]byte

	// endOfRecordedSpace is published (release) by the producer before it
	// publishes the wrap of producerPos, and read (acquire) by the
	// consumer after it observes that wrap.
	endOfRecordedSpace atomic.Uint64
	_                  [cacheLineSize - 8]byte

	shouldDelete atomic.Bool
	_            [cacheLineSize - 1]byte

	// producer-private state; touched only by the owning producer goroutine.
	producerLocal   uint64
	minFreeSpace    uint64
	lastReservedPos uint64
	lastReservedLen uint64

	// consumer-private state; touched only by the compression loop.
	consumerLocal uint64

	storage  []byte
	capacity uint64

	// ID identifies the owning producer. Assigned by the caller (the
	// runtime's Preallocate numbers producers in creation order) and never
	// interpreted by Buffer itself.
	ID int64
}

// New allocates a Buffer with the given capacity in bytes. capacity should
// be a power of two, though the algorithm below does not itself require it.
func New(id int64, capacity int) *Buffer {
	if capacity <= 0 {
		panic("staging: capacity must be positive")
	}
	b := &Buffer{
		storage:  make([]byte, capacity),
		capacity: uint64(capacity),
		ID:       id,
	}
	return b
}

// Reserve returns a contiguous writable region of at least n bytes,
// blocking (spinning) until the consumer frees enough space if necessary.
// It fails with ErrReservationTooLarge if n is at least the buffer's
// capacity. Producer-only.
func (b *Buffer) Reserve(n int) ([]byte, error) {
	return b.reserve(uint64(n), true)
}

// TryReserve is the non-blocking form of Reserve: it returns a nil region
// instead of spinning when there is not enough space. Producer-only.
func (b *Buffer) TryReserve(n int) ([]byte, error) {
	return b.reserve(uint64(n), false)
}

func (b *Buffer) reserve(n uint64, blocking bool) ([]byte, error) {
	if n >= b.capacity {
		return nil, ErrReservationTooLarge
	}

	// Fast path: the producer's cached view of free space already covers
	// this reservation, so we never touch consumerPos.
	for b.minFreeSpace <= n {
		cachedConsumerPos := b.consumerPos.Load()

		if cachedConsumerPos <= b.producerLocal {
			b.minFreeSpace = b.capacity - b.producerLocal

			// Strict inequality: equality would make this reservation
			// indistinguishable from a full buffer.
			if b.minFreeSpace > n {
				return b.claim(n), nil
			}

			// Not enough room before the end of storage; wrap. Publish
			// endOfRecordedSpace before the producerPos wrap so a consumer
			// that observes the wrap can trust it.
			b.endOfRecordedSpace.Store(b.producerLocal)

			// Wrapping onto a consumer still at offset 0 would make
			// producerPos == consumerPos, which reads as empty; keep
			// waiting for the consumer to move instead.
			if cachedConsumerPos != 0 {
				b.producerLocal = 0
				b.producerPos.Store(0)
				b.minFreeSpace = cachedConsumerPos
			}
		} else {
			b.minFreeSpace = cachedConsumerPos - b.producerLocal
		}

		if b.minFreeSpace <= n {
			if !blocking {
				return nil, nil
			}
			runtime.Gosched()
		}
	}

	return b.claim(n), nil
}

// claim records the pending reservation and returns the writable slice.
// Called only once minFreeSpace is known to strictly exceed n.
func (b *Buffer) claim(n uint64) []byte {
	pos := b.producerLocal
	b.lastReservedPos = pos
	b.lastReservedLen = n
	return b.storage[pos : pos+n : pos+n]
}

// Commit publishes n bytes starting at the region returned by the most
// recent Reserve/TryReserve call, advancing producerPos with release
// semantics. Committing zero bytes is a no-op. Producer-only.
func (b *Buffer) Commit(n int) {
	if n == 0 {
		return
	}
	un := uint64(n)
	if un > b.lastReservedLen {
		panic("staging: commit exceeds the last reservation")
	}

	b.producerLocal += un
	b.minFreeSpace -= un
	b.lastReservedLen = 0
	b.producerPos.Store(b.producerLocal)
}

// Peek returns the largest contiguous readable region starting at the
// consumer's current position. The returned slice may be empty.
// Consumer-only.
func (b *Buffer) Peek() []byte {
	cachedProducerPos := b.producerPos.Load()

	if cachedProducerPos < b.consumerLocal {
		// The producer has wrapped; drain up to the recorded high-water
		// mark before resetting to the start of storage.
		end := b.endOfRecordedSpace.Load()
		if end > b.consumerLocal {
			return b.storage[b.consumerLocal:end]
		}

		// Nothing left in the wrapped region; roll over.
		b.consumerLocal = 0
		b.consumerPos.Store(0)
	}

	if cachedProducerPos <= b.consumerLocal {
		return nil
	}
	return b.storage[b.consumerLocal:cachedProducerPos]
}

// Consume advances the consumer position by n bytes, releasing that space
// back to the producer. Consumer-only.
func (b *Buffer) Consume(n int) {
	if n == 0 {
		return
	}
	b.consumerLocal += uint64(n)
	b.consumerPos.Store(b.consumerLocal)
}

// RequestDelete marks the buffer for retirement. Called by the producer's
// teardown hook at thread exit; the consumer performs the actual
// destruction once CanDelete reports true.
func (b *Buffer) RequestDelete() {
	b.shouldDelete.Store(true)
}

// CanDelete reports whether the buffer has been marked for deletion and
// holds no residual data, wrapped or otherwise. Consumer-only.
//
// endOfRecordedSpace is producer-owned, but the only place a wrapped
// region's residue is ever resolved is Peek's own consumerLocal reset once
// that region is fully drained (see the wrap branch above). By the time
// producerPos == consumerLocal holds, Peek has therefore already rolled
// consumerLocal past any leftover wrapped bytes; comparing against the
// producer's endOfRecordedSpace value adds nothing here and, since that
// field is never reset after the wrap it recorded, would wrongly pin a
// genuinely idle buffer as non-deletable forever after its first wrap.
// producerPos == consumerLocal is the correct and sufficient check.
func (b *Buffer) CanDelete() bool {
	if !b.shouldDelete.Load() {
		return false
	}
	return b.producerPos.Load() == b.consumerLocal
}

// Capacity returns the buffer's fixed storage size in bytes.
func (b *Buffer) Capacity() int {
	return int(b.capacity)
}
