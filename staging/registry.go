package staging

import "sync"

// Registry holds the ordered set of live staging buffers and mediates
// structural changes with respect to the compression loop. The mutex is
// never on a producer's fast path: a producer only touches it once, the
// first time it registers its own buffer.
type Registry struct {
	mu      sync.Mutex
	buffers []*Buffer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends buf to the ordered sequence. Safe to call concurrently
// with Lock/Unlock-guarded iteration from the compression loop.
func (r *Registry) Register(buf *Buffer) {
	r.mu.Lock()
	r.buffers = append(r.buffers, buf)
	r.mu.Unlock()
}

// Lock acquires the registry mutex. The compression loop holds it while
// walking the sequence and while calling Len/At/Retire, releasing it only
// while actively draining one buffer's bytes (that buffer's contents don't
// change shape while unlocked; only the sequence itself needs protecting).
func (r *Registry) Lock() {
	r.mu.Lock()
}

// Unlock releases the registry mutex.
func (r *Registry) Unlock() {
	r.mu.Unlock()
}

// Len returns the number of live buffers. Caller must hold the lock.
func (r *Registry) Len() int {
	return len(r.buffers)
}

// At returns the buffer at index i. Caller must hold the lock.
func (r *Registry) At(i int) *Buffer {
	return r.buffers[i]
}

// Retire removes and discards the buffer at index i, which must satisfy
// CanDelete. It reports the index the scan cursor should use next: cursor
// stays put if removal didn't invalidate it, otherwise it is reset to 0.
// Caller must hold the lock.
func (r *Registry) Retire(i int, cursor int) (nextCursor int) {
	r.buffers = append(r.buffers[:i], r.buffers[i+1:]...)

	if len(r.buffers) == 0 {
		return 0
	}
	if cursor >= len(r.buffers) {
		return 0
	}
	return cursor
}
