// Package child provides concrete sub-allocators that satisfy
// list.Allocator — region allocators, mmap allocators, and freelists the
// List keeps as external collaborators. None of this package is part of
// the List's own contract; it exists so the List has real children to
// exercise in tests and in cmd/listbench.
package child

import (
	"sync"

	"github.com/rexso/phobos/internal/xmem"
)

// Region is a bump-pointer allocator over a single fixed backing buffer,
// the simplest child the List's factory can produce. Its buffer-growth
// style (allocate a big backing slice once, bump an offset, reset on
// last free) mirrors memsys.Slab, trimmed to a single contiguous region
// instead of a free-buffer ring.
type Region struct {
	mu        sync.Mutex
	buf       []byte
	off       int
	live      int // number of blocks currently handed out
	alignment int
}

// NewRegion allocates a backing buffer of at least size bytes.
func NewRegion(size int) *Region {
	size = int(xmem.MaxI64(int64(size), 1))
	return &Region{buf: make([]byte, size), alignment: 1}
}

func (r *Region) Alignment() int { return r.alignment }

// Alloc returns the next n bytes of the region, or nil if they don't fit.
// Region never over-returns: the returned slice is always exactly n
// bytes long.
func (r *Region) Alloc(n int) []byte {
	if n < 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.off+n > len(r.buf) {
		return nil
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	r.live++
	return b
}

// Owns reports whether b's backing array falls within this region's buffer.
func (r *Region) Owns(b []byte) bool {
	if len(b) == 0 || len(r.buf) == 0 {
		return false
	}
	lo := addr(r.buf)
	hi := lo + uintptr(len(r.buf))
	a := addr(b)
	return a >= lo && a+uintptr(len(b)) <= hi
}

// Expand grows b by delta in place, only when b is the most recent
// allocation and the region has delta bytes of room left — a bump
// allocator can never expand an allocation buried under later ones.
func (r *Region) Expand(b []byte, delta int) ([]byte, bool) {
	if delta <= 0 || !r.Owns(b) {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	end := int(addr(b)-addr(r.buf)) + len(b)
	if end != r.off {
		return nil, false // not the most recent allocation
	}
	if r.off+delta > len(r.buf) {
		return nil, false
	}
	r.off += delta
	return r.buf[end-len(b) : r.off : r.off], true
}

// Dealloc releases b. Region has no free list, so space is only ever
// reclaimed when every outstanding block has been released (see
// DeallocAll/empty tracking via r.live).
func (r *Region) Dealloc(b []byte) {
	if !r.Owns(b) {
		return
	}
	r.mu.Lock()
	r.live--
	if r.live <= 0 {
		r.live = 0
		r.off = 0
	}
	r.mu.Unlock()
}

// DeallocAll resets the region to empty in one step.
func (r *Region) DeallocAll() {
	r.mu.Lock()
	r.off = 0
	r.live = 0
	r.mu.Unlock()
}

// Realloc resizes b, growing in place when possible and falling back to
// a fresh allocation plus copy otherwise.
func (r *Region) Realloc(b []byte, n int) ([]byte, bool) {
	if n <= len(b) {
		return b[:n], true
	}
	if grown, ok := r.Expand(b, n-len(b)); ok {
		return grown, true
	}
	nb := r.Alloc(n)
	if nb == nil {
		return nil, false
	}
	copy(nb, b)
	r.Dealloc(b)
	return nb, true
}

// Cap returns the region's total backing size, for diagnostics/tests.
func (r *Region) Cap() int { return len(r.buf) }
