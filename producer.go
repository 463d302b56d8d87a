package nanolog

import "github.com/Jacke/NanoLog/staging"

// Producer is a caller-owned handle onto one staging buffer. Go has no
// thread-local storage a library can hook into safely, so the core makes
// the resource explicit: an embedder calls Preallocate once per producer
// (goroutine, connection, whatever unit of concurrency logs
// independently) and keeps the handle for the lifetime of that unit,
// calling Close when it's done.
//
// A Producer must not be shared between goroutines: it is the single
// producer side of one staging buffer.
type Producer struct {
	buf *staging.Buffer
}

// Reserve returns a writable region of at least n bytes for the caller to
// fill with an already-serialized record. Record format and argument
// serialization are the embedder's concern, not the core's.
func (p *Producer) Reserve(n int) ([]byte, error) {
	return p.buf.Reserve(n)
}

// TryReserve is the non-blocking variant of Reserve: it returns a nil
// region instead of spinning when the buffer is full.
func (p *Producer) TryReserve(n int) ([]byte, error) {
	return p.buf.TryReserve(n)
}

// Commit publishes the n bytes written into the region Reserve or
// TryReserve returned.
func (p *Producer) Commit(n int) {
	p.buf.Commit(n)
}

// Close marks this Producer's staging buffer for retirement. The buffer
// is only actually destroyed once the compression loop observes it empty;
// Close does not block waiting for that to happen.
func (p *Producer) Close() {
	p.buf.RequestDelete()
}
