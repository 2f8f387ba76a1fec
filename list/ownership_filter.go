package list

import (
	"encoding/binary"
	"unsafe"

	"github.com/OneOfOne/xxhash"
	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// filterCapacity sizes the cuckoo filter generously relative to how many
// outstanding blocks a single List is expected to juggle; a false
// positive only costs a chain walk, never correctness (see ownershipFilter
// below).
const filterCapacity = 1 << 16

// ownershipFilter is a pure fast-reject layer ahead of List.Owns's
// authoritative MRU chain walk: a negative lookup proves a block was
// never handed out by this List and short-circuits straight to false.
// A positive lookup changes nothing — the chain walk still runs.
//
// Entries are keyed by a block's start address. With the filter enabled,
// Owns therefore reports false for a slice that starts inside an
// outstanding block rather than at its start, even where the owning child
// would claim it.
type ownershipFilter struct {
	f *cuckoo.Filter
}

func newOwnershipFilter() *ownershipFilter {
	return &ownershipFilter{f: cuckoo.NewFilter(filterCapacity)}
}

func (o *ownershipFilter) insert(b []byte)      { o.f.Insert(fingerprint(b)) }
func (o *ownershipFilter) remove(b []byte)      { o.f.Delete(fingerprint(b)) }
func (o *ownershipFilter) mayOwn(b []byte) bool { return o.f.Lookup(fingerprint(b)) }
func (o *ownershipFilter) reset()               { o.f = cuckoo.NewFilter(filterCapacity) }

// fingerprint hashes a block's starting address (not its contents — two
// equal-content blocks at different addresses are different allocations)
// with an xxhash fingerprint, the way memsys picks xxhash for
// its own checksums elsewhere in the aistore tree.
func fingerprint(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&b[0]))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(addr))
	sum := xxhash.Checksum64(buf[:])
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], sum)
	return out[:]
}
