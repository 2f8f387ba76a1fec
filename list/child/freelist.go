package child

import (
	"encoding/binary"
	"sync"

	"github.com/rexso/phobos/internal/xmem"
)

// noFree is the freelist's own "no next block" sentinel, an ordinary
// value rather than a self-pointer trick — see the same reasoning in
// list/slot.go's doc comment for why this port favors explicit tags.
const noFree = -1

// Freelist is a fixed-block-size allocator: one backing buffer cut into
// blockSize blocks, threaded into a singly-linked free list by writing
// the next free offset into the first 8 bytes of each free block. This
// is the classic segregated-freelist shape, specialized for workloads
// that repeatedly allocate and release same-sized blocks — exactly what
// pair-based release exercises well.
//
// Freelist only ever satisfies requests for exactly blockSize bytes —
// any other size is refused by returning nil, which is simply the honest
// answer rather than a special case: the List never accepts a block
// whose length differs from the request, so a Freelist that could only
// approximate a size would be useless to it anyway.
type Freelist struct {
	mu        sync.Mutex
	buf       []byte
	blockSize int
	head      int // offset of first free block, noFree if none
	live      int
	alignment int
}

// NewFreelist carves count blocks of blockSize bytes out of one backing
// buffer.
func NewFreelist(blockSize, count int) *Freelist {
	blockSize = int(xmem.MaxI64(int64(blockSize), 8)) // needs room for the free-list next-pointer
	count = int(xmem.MaxI64(int64(count), 1))
	f := &Freelist{
		buf:       make([]byte, blockSize*count),
		blockSize: blockSize,
		alignment: 1,
	}
	for i := 0; i < count; i++ {
		off := i * blockSize
		next := noFree
		if i+1 < count {
			next = (i + 1) * blockSize
		}
		binary.LittleEndian.PutUint64(f.buf[off:off+8], uint64(int64(next)))
	}
	f.head = 0
	return f
}

func (f *Freelist) Alignment() int { return f.alignment }

func (f *Freelist) Alloc(n int) []byte {
	if n != f.blockSize {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.head == noFree {
		return nil
	}
	off := f.head
	next := int64(binary.LittleEndian.Uint64(f.buf[off : off+8]))
	f.head = int(next)
	f.live++
	return f.buf[off : off+f.blockSize : off+f.blockSize]
}

func (f *Freelist) Owns(b []byte) bool {
	if len(b) != f.blockSize || len(f.buf) == 0 {
		return false
	}
	lo, hi := addr(f.buf), addr(f.buf)+uintptr(len(f.buf))
	a := addr(b)
	return a >= lo && a+uintptr(len(b)) <= hi && (a-lo)%uintptr(f.blockSize) == 0
}

func (f *Freelist) Dealloc(b []byte) {
	if !f.Owns(b) {
		return
	}
	f.mu.Lock()
	off := int(addr(b) - addr(f.buf))
	binary.LittleEndian.PutUint64(f.buf[off:off+8], uint64(int64(f.head)))
	f.head = off
	f.live--
	f.mu.Unlock()
}

func (f *Freelist) DeallocAll() {
	f.mu.Lock()
	count := len(f.buf) / f.blockSize
	for i := 0; i < count; i++ {
		off := i * f.blockSize
		next := noFree
		if i+1 < count {
			next = (i + 1) * f.blockSize
		}
		binary.LittleEndian.PutUint64(f.buf[off:off+8], uint64(int64(next)))
	}
	f.head = 0
	f.live = 0
	f.mu.Unlock()
}

// Cap returns the number of blocks this freelist was built with.
func (f *Freelist) Cap() int { return len(f.buf) / f.blockSize }
