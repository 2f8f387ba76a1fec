// Package list implements phobos's composite ("List") memory allocator:
// a collection of lazily created child sub-allocators, threaded by a
// most-recently-used chain, that forwards client requests to whichever
// child can satisfy them and grows the collection on demand.
//
// The design mirrors memsys's MMSA/Slab split in spirit — a manager that
// owns a set of reusable storage pools and picks among them — but where
// MMSA multiplexes buffer sizes across a fixed ring of same-shaped Slabs,
// the List multiplexes whole sub-allocators of possibly different
// implementations, grown one at a time from a factory.
package list

import "errors"

// Allocator is the capability surface a List child must implement.
// Every child supports Alloc and Alignment; the rest are optional and
// gate the corresponding List operation.
type Allocator interface {
	// Alloc returns a block of exactly n bytes, or nil on failure.
	// The List never accepts a block whose length differs from the
	// request (see List.Allocate).
	Alloc(n int) []byte
	// Alignment reports the byte alignment every block from this
	// allocator satisfies.
	Alignment() int
}

// Owner is implemented by allocators that can answer ownership queries.
// Required for List.Owns, List.Deallocate, List.Expand, List.Reallocate.
type Owner interface {
	Owns(b []byte) bool
}

// Expander is implemented by allocators that can grow a block in place.
type Expander interface {
	Expand(b []byte, delta int) (grown []byte, ok bool)
}

// Reallocator is implemented by allocators that can resize a block,
// in place or by relocation.
type Reallocator interface {
	Realloc(b []byte, n int) (resized []byte, ok bool)
}

// Deallocator is implemented by allocators that can release a block.
type Deallocator interface {
	Dealloc(b []byte)
}

// AllClearer is implemented by allocators that can release everything
// they own in one step, e.g. at composite teardown.
type AllClearer interface {
	DeallocAll()
}

// Factory produces a fresh child allocator able to satisfy at least one
// allocation of n bytes. In ouroboros mode n occasionally includes the
// List's own slot-array overhead plus headroom (see list.go); factories
// must tolerate that.
type Factory func(n int) (Allocator, error)

// ErrExhausted records that no child, existing or freshly created, could
// serve a request; it is never returned to callers of Allocate directly
// (those see nil, matching every other child failure), but is retained
// on the List and surfaced via LastError for diagnostics.
var ErrExhausted = errors.New("phobos: no child could satisfy the request")
