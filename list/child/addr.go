package child

import "unsafe"

// addr returns b's backing array address, or 0 for an empty slice.
// Used by Region/Freelist's Owns to do address-range containment
// checks, the same low-level trick other_examples's off-heap allocators
// (cznic/memory, flier-goutil/arena) use to test pointer membership.
func addr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
