package list

import (
	"time"

	"github.com/teris-io/shortid"
)

// none is the MRU-chain terminator, the Go-index analogue of the null
// pointer used by a pointer-based chain representation.
const none = -1

// handle wraps one child allocator with the accounting the List itself
// is responsible for: an accurate count of bytes outstanding, kept by the
// composite as it forwards requests rather than delegated to the child.
type handle struct {
	alloc       Allocator
	outstanding int64
	emptySince  time.Time // zero => not empty, or emptiness not yet timestamped
	tag         string    // short diagnostic id, memsys.Slab.tag's role
}

func newHandle(a Allocator) handle {
	id, _ := shortid.Generate()
	return handle{alloc: a, tag: id}
}

func (h *handle) empty() bool { return h.outstanding == 0 }

// touch records n additional outstanding bytes (n may be negative,
// for Expand/Reallocate deltas) and maintains the idle timestamp that
// Reap consults.
func (h *handle) touch(n int64) {
	wasEmpty := h.empty()
	h.outstanding += n
	if wasEmpty && h.outstanding != 0 {
		h.emptySince = time.Time{}
	} else if !wasEmpty && h.outstanding == 0 {
		h.emptySince = time.Now()
	}
}

// slot is one cell of the List's slot array: either unused, or live and
// holding a handle plus its MRU-chain successor.
//
// One common representation of this kind of chain uses a self-pointer
// sentinel ("next == &self") so a single pointer can encode
// unused/live-with-successor/live-terminal in one field. This Go,
// index-based port instead uses an explicit tag: interior pointers into a
// growable []slot aren't stable across append-driven growth, so live is
// its own field and next only ever means "next live slot, or none".
type slot struct {
	live bool
	h    handle
	next int
}
