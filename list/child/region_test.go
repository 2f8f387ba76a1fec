package child_test

import (
	"testing"

	"github.com/rexso/phobos/list/child"
)

func TestRegionAllocExact(t *testing.T) {
	r := child.NewRegion(64)
	b := r.Alloc(32)
	if len(b) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(b))
	}
	if !r.Owns(b) {
		t.Fatalf("region does not own its own allocation")
	}
}

func TestRegionAllocExhausted(t *testing.T) {
	r := child.NewRegion(16)
	if b := r.Alloc(17); b != nil {
		t.Fatalf("expected nil for over-sized request, got %d bytes", len(b))
	}
	if b := r.Alloc(16); len(b) != 16 {
		t.Fatalf("expected exact 16-byte allocation to succeed")
	}
	if b := r.Alloc(1); b != nil {
		t.Fatalf("expected region to be exhausted")
	}
}

func TestRegionDeallocResetsWhenEmpty(t *testing.T) {
	r := child.NewRegion(16)
	a := r.Alloc(8)
	b := r.Alloc(8)
	if a == nil || b == nil {
		t.Fatalf("setup allocations failed")
	}
	r.Dealloc(a)
	if c := r.Alloc(1); c != nil {
		t.Fatalf("region should still be full while b is outstanding")
	}
	r.Dealloc(b)
	if c := r.Alloc(16); len(c) != 16 {
		t.Fatalf("region should have reset to empty once both blocks were freed")
	}
}

func TestRegionExpandMostRecentOnly(t *testing.T) {
	r := child.NewRegion(32)
	a := r.Alloc(8)
	bBlock := r.Alloc(8)
	if _, ok := r.Expand(a, 4); ok {
		t.Fatalf("expanding a non-trailing allocation should fail")
	}
	grown, ok := r.Expand(bBlock, 4)
	if !ok || len(grown) != 12 {
		t.Fatalf("expanding the most recent allocation should succeed, got ok=%v len=%d", ok, len(grown))
	}
}

func TestRegionOwnsRejectsForeignSlice(t *testing.T) {
	r := child.NewRegion(16)
	foreign := make([]byte, 4)
	if r.Owns(foreign) {
		t.Fatalf("region incorrectly claims a foreign slice")
	}
}
