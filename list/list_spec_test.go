package list_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/rexso/phobos/list"
	"github.com/rexso/phobos/list/child"
)

// regionFactory builds a list.Factory backed by child.Region, over-
// dimensioning every child to at least minCap bytes — the same
// "max(n, fixed capacity)" shape a region child backed by a fixed buffer
// naturally produces.
func regionFactory(minCap int) list.Factory {
	return func(n int) (list.Allocator, error) {
		size := n
		if size < minCap {
			size = minCap
		}
		return child.NewRegion(size), nil
	}
}

// fixedRegionFactory ignores the requested size and always hands back a
// region of exactly cap bytes — a region backed by a genuinely fixed
// buffer, as opposed to regionFactory's "at least" sizing used for the
// ouroboros-bootstrap tests above.
func fixedRegionFactory(cap int) list.Factory {
	return func(int) (list.Allocator, error) {
		return child.NewRegion(cap), nil
	}
}

var _ = Describe("List", func() {
	Describe("ouroboros mode", func() {
		var l *list.List

		BeforeEach(func() {
			l = list.New(list.Config{Factory: regionFactory(4 << 20)})
		})

		It("starts empty", func() {
			Expect(l.Empty()).To(BeTrue())
		})

		It("is non-empty after a large allocation that over-dimensions the child", func() {
			b := l.Allocate(8 << 20)
			Expect(b).NotTo(BeNil())
			Expect(l.Empty()).To(BeFalse())
		})

		It("returns a block of exactly the requested length and promotes the serving child", func() {
			l.Allocate(8 << 20)
			root := l.Root()
			b := l.Allocate(10 * 1024)
			Expect(len(b)).To(Equal(10 * 1024))
			// the first child was sized to the 8 MiB request plus the slot array and
			// headroom, so a fresh child serves the 10 KiB block and becomes root.
			Expect(l.Root()).NotTo(Equal(root))
		})

		It("is empty again after DeallocateAll with no assertion firing", func() {
			l.Allocate(4<<20 - 4096)
			l.DeallocateAll()
			Expect(l.Empty()).To(BeTrue())
		})

		It("retains the same child across a free/realloc cycle (pair-based release)", func() {
			a := l.Allocate(100)
			firstRoot := l.Root()
			l.Deallocate(a)
			b := l.Allocate(100)
			Expect(l.Root()).To(Equal(firstRoot))
			_ = b
		})

		It("promotes the owner to root after Owns and after Deallocate", func() {
			a := l.Allocate(100)
			_ = l.Allocate(200) // served by the same child, which stays root
			Expect(l.Owns(a)).To(BeTrue())
			Expect(l.Root()).NotTo(Equal(-1))
			rootAfterOwns := l.Root()

			l.Deallocate(a)
			// whichever slot served `a` must be root right after Deallocate.
			Expect(l.Root()).To(Equal(rootAfterOwns))
		})

		It("does not promote on Expand or Reallocate", func() {
			// A fixed 8-byte-capacity factory guarantees the second Allocate(8)
			// can't be served by the first child and must create a distinct one,
			// so a's owner and the resulting root are provably different slots.
			bk := child.NewRegion(4096)
			ll := list.New(list.Config{Factory: fixedRegionFactory(8), Bookkeeping: bk})
			a := ll.Allocate(8)
			Expect(a).NotTo(BeNil())
			ownerOfA := ll.Root()

			b := ll.Allocate(8)
			Expect(b).NotTo(BeNil())
			otherRoot := ll.Root()
			Expect(otherRoot).NotTo(Equal(ownerOfA))

			_, ok := ll.Expand(a, 4)
			_ = ll.Reallocate(a, 4)
			// whether or not Expand and Reallocate succeeded, root must be
			// unchanged when a's owner isn't already root.
			_ = ok
			Expect(ll.Root()).To(Equal(otherRoot))
		})

		It("keeps the MRU chain acyclic and exactly covering every live slot", func() {
			var blocks [][]byte
			for i := 0; i < 5; i++ {
				b := l.Allocate(1024)
				Expect(b).NotTo(BeNil())
				blocks = append(blocks, b)
			}
			order := l.ChainOrder()
			Expect(len(order)).To(Equal(l.LiveCount()))
		})

		It("forces growth events and keeps the slot array owned by exactly one live child", func() {
			small := list.New(list.Config{Factory: regionFactory(16 << 10)})
			_ = small.Allocate(15 << 10)
			idx1, ok1 := small.ArrayOwner()
			Expect(ok1).To(BeTrue())

			_ = small.Allocate(15 << 10) // forces a second child, possibly a second growth
			idx2, ok2 := small.ArrayOwner()
			Expect(ok2).To(BeTrue())
			_ = idx1
			_ = idx2 // exactly one owner is reported either way; ok2 proves it still holds
		})

		It("creates only one new child when the fresh child still can't satisfy the request", func() {
			// External bookkeeping mode with a fixed-capacity factory: unlike
			// ouroboros mode (where the growth request is sized to include the
			// triggering allocation, see list.go's addAllocatorOuroboros), this
			// factory mimics a fixed-size region child that ignores the
			// requested size, so a too-large request still fails on the fresh
			// child the way a fixed-size region child naturally does.
			bk := child.NewRegion(4096)
			tiny := list.New(list.Config{Factory: fixedRegionFactory(1024), Bookkeeping: bk})
			full := tiny.Allocate(1024)
			Expect(full).NotTo(BeNil())

			before := tiny.LiveCount()
			huge := tiny.Allocate(1 << 20) // no child, existing or fresh, can satisfy this
			Expect(huge).To(BeNil())
			Expect(tiny.LiveCount()).To(Equal(before + 1)) // exactly one new (empty) child was added
		})

		It("empty() reports true iff no slot is live", func() {
			fresh := list.New(list.Config{Factory: regionFactory(4096)})
			Expect(fresh.Empty()).To(BeTrue())
			b := fresh.Allocate(128)
			Expect(fresh.Empty()).To(BeFalse())
			fresh.Deallocate(b)
			// the lone child stays live after its only client block is freed (it
			// still hosts the slot array); the List is still non-empty even
			// though no client bytes are outstanding.
			Expect(fresh.Empty()).To(BeFalse())
			Expect(fresh.LiveCount()).To(Equal(1))
		})
	})

	Describe("external bookkeeping mode", func() {
		It("serves allocations the same way as ouroboros mode", func() {
			bk := child.NewRegion(4096)
			l := list.New(list.Config{Factory: regionFactory(4 << 20), Bookkeeping: bk})
			b := l.Allocate(1024)
			Expect(len(b)).To(Equal(1024))
			_, ok := l.ArrayOwner()
			Expect(ok).To(BeFalse(), "ArrayOwner only applies to ouroboros mode")
		})
	})

	Describe("ownership acceleration", func() {
		It("still reports ownership correctly with the cuckoo-filter fast path enabled", func() {
			l := list.New(list.Config{Factory: regionFactory(4096), Filter: true})
			a := l.Allocate(64)
			Expect(l.Owns(a)).To(BeTrue())
			foreign := make([]byte, 64)
			Expect(l.Owns(foreign)).To(BeFalse())
		})
	})

	Describe("Reap", func() {
		It("never reaps the last retained empty child immediately (idle threshold not yet elapsed)", func() {
			l := list.New(list.Config{Factory: regionFactory(4096)})
			b := l.Allocate(128)
			l.Deallocate(b)
			before := l.LiveCount()
			reaped := l.Reap(time.Hour)
			Expect(reaped).To(Equal(0))
			Expect(l.LiveCount()).To(Equal(before))
		})

		It("destroys an empty child once it has aged past the idle threshold", func() {
			bk := child.NewRegion(1 << 20)
			l := list.New(list.Config{Factory: fixedRegionFactory(128), Bookkeeping: bk})
			a := l.Allocate(128)
			b := l.Allocate(128)
			Expect(l.LiveCount()).To(Equal(2), "each 128-byte request should have forced its own fixed-size child")

			// Only a is freed: freeing b too would empty a second child, and
			// pair-based release would destroy one of the two right away.
			l.Deallocate(a)
			before := l.LiveCount()

			time.Sleep(2 * time.Millisecond)
			reaped := l.Reap(time.Millisecond)

			Expect(reaped).To(Equal(1), "the idle empty child is destroyed; the child still holding b stays")
			Expect(l.LiveCount()).To(Equal(before - 1))
			l.Deallocate(b)
		})
	})
})
