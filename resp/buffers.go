package resp

import (
	"sync"

	"github.com/pior/redis/internal/bufpool"
)

// BufferPool hands out byte slices for decoded payloads.
type BufferPool interface {
	// Rent returns a slice of exactly n bytes.
	Rent(n int) []byte
}

// HeapBuffers allocates every payload from the heap.
type HeapBuffers struct{}

// Rent allocates a new slice.
func (HeapBuffers) Rent(n int) []byte {
	return make([]byte, n)
}

// PooledBuffers rents payload buffers from shared size-classed pools and
// returns them all at once on Release. Payloads decoded through it are only
// valid until Release.
//
// PooledBuffers is safe for concurrent use.
type PooledBuffers struct {
	mu     sync.Mutex
	rented []*[]byte
}

// NewPooledBuffers returns an empty buffer set.
func NewPooledBuffers() *PooledBuffers {
	return &PooledBuffers{}
}

// Rent returns a pooled slice of length n.
func (p *PooledBuffers) Rent(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	b := bufpool.Get(n)
	p.mu.Lock()
	p.rented = append(p.rented, b)
	p.mu.Unlock()
	return (*b)[:n]
}

// Rented returns the number of buffers currently held.
func (p *PooledBuffers) Rented() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rented)
}

// Release returns every rented buffer to the shared pools.
func (p *PooledBuffers) Release() {
	p.mu.Lock()
	rented := p.rented
	p.rented = nil
	p.mu.Unlock()

	for _, b := range rented {
		bufpool.Put(b)
	}
}
