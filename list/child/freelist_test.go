package child_test

import (
	"testing"

	"github.com/rexso/phobos/list/child"
)

func TestFreelistAllocRejectsWrongSize(t *testing.T) {
	f := child.NewFreelist(32, 4)
	if b := f.Alloc(16); b != nil {
		t.Fatalf("freelist must refuse sizes other than its block size")
	}
	b := f.Alloc(32)
	if len(b) != 32 {
		t.Fatalf("expected a 32-byte block")
	}
}

func TestFreelistReusesFreedBlocks(t *testing.T) {
	f := child.NewFreelist(16, 2)
	a := f.Alloc(16)
	b := f.Alloc(16)
	if f.Alloc(16) != nil {
		t.Fatalf("freelist should be exhausted after 2 allocations from a 2-block pool")
	}
	f.Dealloc(a)
	c := f.Alloc(16)
	if c == nil {
		t.Fatalf("freelist should reuse a, now-freed, block")
	}
	f.Dealloc(b)
	f.Dealloc(c)
}

func TestFreelistOwnsRequiresExactBlockAlignment(t *testing.T) {
	f := child.NewFreelist(16, 2)
	a := f.Alloc(16)
	if !f.Owns(a) {
		t.Fatalf("freelist should own a block it handed out")
	}
	mid := a[:8]
	if f.Owns(mid) {
		t.Fatalf("freelist should not own a sub-slice that isn't block-aligned in length")
	}
}
