package list

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rexso/phobos/internal/xdebug"
)

// headroom is the slack the ouroboros bootstrap folds into its first
// factory request alongside the triggering allocation and the slot-array
// overhead, exactly the 128 bytes of slack a fresh ouroboros child folds in.
const headroom = 128

// defaultIdleAfter mirrors memsys's memCheckAbove: the default duration an
// empty, retained child must sit idle before Reap is willing to destroy it
// when the caller doesn't pass an explicit threshold.
const defaultIdleAfter = 90 * time.Second

// slotCost is the bookkeeping charge, in bytes, attributed to whichever
// child hosts the slot array. Go doesn't lay the array out as a raw
// byte buffer (see list/slot.go's doc comment and SPEC_FULL.md's "Go-native
// representation" section), so this is an estimate of one slot's footprint
// used only to size factory requests and to charge the hosting child's
// outstanding-bytes accounting — not an actual memory layout.
const slotCost = 64

type bkMode int

const (
	modeOuroboros bkMode = iota
	modeExternal
)

// Config configures a new List.
type Config struct {
	// Factory produces child sub-allocators. Required.
	Factory Factory
	// Bookkeeping, when non-nil, puts the List into external bookkeeping
	// mode: the slot array is hosted by this allocator instead of inside
	// one of the List's own children. Nil selects ouroboros mode.
	Bookkeeping Allocator
	// Alignment is reported verbatim by List.Alignment. If zero, the
	// List reports its current root child's alignment instead once one
	// exists, and 0 before any child has been created.
	Alignment int
	// Filter, when true, maintains a cuckoo-filter fast-reject layer
	// ahead of List.Owns's MRU chain walk (see SPEC_FULL.md's "Ownership
	// acceleration" item). Off by default; enable for Lists expected to
	// accumulate many children.
	Filter bool
}

// List is the composite allocator: it lazily creates child allocators
// via a factory, threads them on an MRU chain, and forwards allocation
// requests to whichever child can serve them, growing the collection
// on demand. See the package doc for the full model.
type List struct {
	ID uuid.UUID

	factory Factory
	mode    bkMode
	bk      Allocator

	slots []slot
	root  int

	special   int    // ouroboros mode only: index hosting the slot array
	hostedBuf []byte // the buffer standing in for "the slot array"

	alignment int
	minSlots  int
	idleAfter time.Duration

	filter *ownershipFilter

	lastErr error
}

// New constructs a List from cfg. The List starts with no children;
// the first one is created lazily on the first Allocate.
func New(cfg Config) *List {
	xdebug.Assert(cfg.Factory != nil, "list.New: Factory is required")
	l := &List{
		ID:        uuid.New(),
		factory:   cfg.Factory,
		root:      none,
		special:   none,
		alignment: cfg.Alignment,
		minSlots:  envMinSlots(),
		idleAfter: envIdleAfter(),
	}
	if cfg.Bookkeeping != nil {
		l.mode = modeExternal
		l.bk = cfg.Bookkeeping
	} else {
		l.mode = modeOuroboros
	}
	if cfg.Filter {
		l.filter = newOwnershipFilter()
	}
	return l
}

func envMinSlots() int {
	if v := os.Getenv("PHOBOS_MIN_SLOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// envIdleAfter mirrors memsys's freeIdleMin/freeIdleZero env-overridable
// idle windows, collapsed to the single PHOBOS_IDLE_AFTER duration string
// Reap consults when the caller passes a non-positive idle argument.
func envIdleAfter() time.Duration {
	if v := os.Getenv("PHOBOS_IDLE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultIdleAfter
}

// LastError returns the most recent internal error the List observed: a
// factory or bookkeeping-allocator failure while growing, wrapped with
// context via github.com/pkg/errors, or ErrExhausted when no child could
// serve an Allocate. Client-visible operations
// still return the sentinel nil/false a client sees on failure; this is
// purely for diagnostics.
func (l *List) LastError() error { return l.lastErr }

// Empty reports whether the List currently holds no live children.
func (l *List) Empty() bool { return l.root == none }

// Alignment reports the byte alignment of blocks returned by this List.
func (l *List) Alignment() int {
	if l.alignment != 0 {
		return l.alignment
	}
	if l.root != none {
		return l.slots[l.root].h.alloc.Alignment()
	}
	return 0
}

// Allocate walks the MRU chain for a child able to serve exactly s bytes,
// growing the List by one child if none can.
func (l *List) Allocate(s int) []byte {
	prev, idx := none, l.root
	for idx != none {
		sl := &l.slots[idx]
		if b := sl.h.alloc.Alloc(s); b != nil && len(b) == s {
			l.promote(prev, idx)
			sl.h.touch(int64(s))
			l.filterInsert(b)
			return b
		}
		prev, idx = idx, sl.next
	}

	// The root, if any, is always the most-recently-created child on
	// exhaustion; if it's still empty it could not satisfy the request when
	// fresh, and creating another equally-sized child won't help.
	if l.root != none && l.slots[l.root].h.empty() {
		l.lastErr = ErrExhausted
		return nil
	}

	newIdx, err := l.addAllocator(s)
	if err != nil {
		return nil
	}
	sl := &l.slots[newIdx]
	b := sl.h.alloc.Alloc(s)
	if b == nil || len(b) != s {
		l.lastErr = ErrExhausted
		return nil
	}
	sl.h.touch(int64(s))
	l.filterInsert(b)
	return b
}

// Owns reports whether b was handed out by some live child. Available
// only when children expose Owner.
func (l *List) Owns(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	if l.filter != nil && !l.filter.mayOwn(b) {
		return false
	}
	prev, idx := none, l.root
	for idx != none {
		sl := &l.slots[idx]
		if o, ok := sl.h.alloc.(Owner); ok && o.Owns(b) {
			l.promote(prev, idx)
			return true
		}
		prev, idx = idx, sl.next
	}
	return false
}

// Expand grows b in place through its owning child. Deliberately does not
// promote: it reuses an already-known block, and promoting on every expand
// would bias the chain toward rarely-touched heads.
func (l *List) Expand(b []byte, delta int) (grown []byte, ok bool) {
	if len(b) == 0 {
		grown = l.Allocate(delta)
		return grown, len(grown) == delta
	}
	idx := l.findOwner(b)
	if idx == none {
		return nil, false
	}
	e, ok := l.slots[idx].h.alloc.(Expander)
	if !ok {
		return nil, false
	}
	grown, ok = e.Expand(b, delta)
	if ok {
		l.slots[idx].h.touch(int64(delta))
		l.filterSwap(b, grown)
	}
	return grown, ok
}

// Reallocate resizes b through its owning child, falling back to the
// generic allocate/copy/deallocate pattern when the owner can't resize in
// place. Like Expand, it does not promote on the fast path.
func (l *List) Reallocate(b []byte, s int) []byte {
	if len(b) == 0 {
		return l.Allocate(s)
	}
	idx := l.findOwner(b)
	if idx == none {
		return nil
	}
	if r, ok := l.slots[idx].h.alloc.(Reallocator); ok {
		if resized, ok := r.Realloc(b, s); ok {
			l.slots[idx].h.touch(int64(s - len(b)))
			l.filterSwap(b, resized)
			return resized
		}
	}
	nb := l.Allocate(s)
	if nb == nil {
		return nil
	}
	copy(nb, b)
	l.Deallocate(b)
	return nb
}

// Deallocate releases b through its owning child, promotes that child to
// root, and runs pair-based release if the owner is now empty.
func (l *List) Deallocate(b []byte) {
	if len(b) == 0 {
		return
	}
	prev, idx := none, l.root
	for idx != none {
		sl := &l.slots[idx]
		o, ok := sl.h.alloc.(Owner)
		if !ok || !o.Owns(b) {
			prev, idx = idx, sl.next
			continue
		}
		d, ok := sl.h.alloc.(Deallocator)
		xdebug.Assertf(ok, "deallocate: owner of slot %d has no Deallocator capability", idx)
		d.Dealloc(b)
		l.filterRemove(b)
		sl.h.touch(-int64(len(b)))
		l.promote(prev, idx)
		if !l.slots[idx].h.empty() {
			return
		}
		l.releasePairedEmpty(idx)
		return
	}
	xdebug.Assert(false, "deallocate: block not owned by any live child")
}

// DeallocateAll destroys every live child and releases the slot array.
func (l *List) DeallocateAll() {
	if l.mode == modeOuroboros {
		special := l.special
		for i := range l.slots {
			if !l.slots[i].live || i == special {
				continue
			}
			if c, ok := l.slots[i].h.alloc.(AllClearer); ok {
				c.DeallocAll()
			}
		}
		if special != none && l.slots[special].live {
			sh := l.slots[special].h.alloc
			if d, ok := sh.(Deallocator); ok && l.hostedBuf != nil {
				d.Dealloc(l.hostedBuf)
			}
			if c, ok := sh.(AllClearer); ok {
				c.DeallocAll()
			}
		}
	} else {
		for i := range l.slots {
			if !l.slots[i].live {
				continue
			}
			if c, ok := l.slots[i].h.alloc.(AllClearer); ok {
				c.DeallocAll()
			}
		}
		if l.bk != nil && l.hostedBuf != nil {
			if d, ok := l.bk.(Deallocator); ok {
				d.Dealloc(l.hostedBuf)
			}
		}
	}
	l.slots = nil
	l.root = none
	l.special = none
	l.hostedBuf = nil
	if l.filter != nil {
		l.filter.reset()
	}
}

// Reap destroys live, empty children that have been idle for at least
// idle. It is a caller-driven synchronous operation, never invoked from a
// background goroutine against a List the caller might be using
// concurrently. The ouroboros special slot is never reaped: it still
// owns the slot array's accounting buffer even while its own client
// allocations are empty. Reap always retains at least one live child,
// mirroring memsys's "keep at least one" floor on slab-ring reduction.
func (l *List) Reap(idle time.Duration) (reaped int) {
	if idle <= 0 {
		idle = l.idleAfter
	}
	live := l.LiveCount()
	now := time.Now()
	prev, idx := none, l.root
	for idx != none {
		sl := &l.slots[idx]
		next := sl.next
		if live > 1 && idx != l.special && sl.h.empty() && !sl.h.emptySince.IsZero() && now.Sub(sl.h.emptySince) >= idle {
			if prev == none {
				l.root = next
			} else {
				l.slots[prev].next = next
			}
			l.destroyChild(idx, fmt.Sprintf("reap idle %s", now.Sub(sl.h.emptySince)))
			reaped++
			live--
			idx = next
			continue
		}
		prev, idx = idx, next
	}
	return reaped
}

// ArrayOwner reports which live slot currently hosts the slot array's
// accounting buffer in ouroboros mode. It returns ok == false in external
// bookkeeping mode or before any child has been created.
func (l *List) ArrayOwner() (idx int, ok bool) {
	if l.mode != modeOuroboros || l.special == none {
		return none, false
	}
	return l.special, true
}

// Root returns the index of the current MRU head, or a negative number
// if the List holds no live children. Exposed for tests of the
// MRU-promotion behavior.
func (l *List) Root() int { return l.root }

// ChainOrder walks the MRU chain from root and returns the visited slot
// indices in order, stopping defensively if it ever revisits an index
// (which would indicate a cycle) rather than looping forever. Exposed
// for chain-acyclicity tests.
func (l *List) ChainOrder() []int {
	seen := make(map[int]bool, len(l.slots))
	var out []int
	idx := l.root
	for idx != none {
		if seen[idx] {
			break
		}
		seen[idx] = true
		out = append(out, idx)
		idx = l.slots[idx].next
	}
	return out
}

// LiveCount returns the number of currently live slots.
func (l *List) LiveCount() int {
	n := 0
	for i := range l.slots {
		if l.slots[i].live {
			n++
		}
	}
	return n
}

/////////////////////
// internal helpers //
/////////////////////

func (l *List) findOwner(b []byte) int {
	idx := l.root
	for idx != none {
		if o, ok := l.slots[idx].h.alloc.(Owner); ok && o.Owns(b) {
			return idx
		}
		idx = l.slots[idx].next
	}
	return none
}

// promote unlinks idx (whose chain predecessor is prev, none if idx is
// already root) and relinks it at the head. Because every caller already
// knows idx's predecessor from the walk that found it, this is O(1),
// matching the intrusive chain's intent: no separate list allocation,
// no pointer-chasing beyond the slots themselves.
func (l *List) promote(prev, idx int) {
	if idx == l.root {
		return
	}
	if prev != none {
		l.slots[prev].next = l.slots[idx].next
	}
	l.slots[idx].next = l.root
	l.root = idx
}

func (l *List) insertAtHead(idx int) {
	l.slots[idx].next = l.root
	l.root = idx
}

// releasePairedEmpty runs pair-based release: scan the chain starting
// after the just-emptied root for another live-empty slot, and destroy
// the first one found.
func (l *List) releasePairedEmpty(rootIdx int) {
	prev, idx := rootIdx, l.slots[rootIdx].next
	for idx != none {
		sl := &l.slots[idx]
		if idx != l.special && sl.h.empty() {
			l.slots[prev].next = sl.next
			l.destroyChild(idx, fmt.Sprintf("pair-released, root %s stays", l.slots[rootIdx].h.tag))
			return
		}
		prev, idx = idx, sl.next
	}
}

func (l *List) destroyChild(idx int, reason string) {
	sl := &l.slots[idx]
	xdebug.Infof("%s: destroy (%s)", sl.h.tag, reason)
	if c, ok := sl.h.alloc.(AllClearer); ok {
		c.DeallocAll()
	}
	*sl = slot{live: false, next: none}
}

func (l *List) filterInsert(b []byte) {
	if l.filter != nil {
		l.filter.insert(b)
	}
}

func (l *List) filterRemove(b []byte) {
	if l.filter != nil {
		l.filter.remove(b)
	}
}

func (l *List) filterSwap(old, new []byte) {
	if l.filter == nil {
		return
	}
	l.filter.remove(old)
	l.filter.insert(new)
}

// addAllocator grows the slot array if needed, then creates and installs
// a new child able to serve an allocation of s. It returns the index of
// the freshly installed child, always left at the MRU chain head.
func (l *List) addAllocator(s int) (int, error) {
	if idx := l.findUnusedSlot(); idx != none {
		return l.createChildInto(s, idx)
	}
	if l.mode == modeOuroboros {
		return l.addAllocatorOuroboros(s)
	}
	return l.addAllocatorExternal(s)
}

// findUnusedSlot returns the index of a not-live slot left over from a
// prior growth batch (see growthBatch) or a reaped/destroyed child, so a
// new child can claim it without growing the slot array again. Returns
// none if every slot is live.
func (l *List) findUnusedSlot() int {
	for i := range l.slots {
		if !l.slots[i].live {
			return i
		}
	}
	return none
}

// growthBatch reports how many slots to provision in one relocation,
// floored at 1. A batch greater than 1 trades a larger single factory
// request for fewer future relocations; trailing slots beyond what's
// claimed immediately are simply marked unused until needed.
func (l *List) growthBatch() int {
	if l.minSlots < 1 {
		return 1
	}
	return l.minSlots
}

func (l *List) addAllocatorOuroboros(s int) (int, error) {
	batch := l.growthBatch()
	if l.special != none {
		sp := &l.slots[l.special]
		grow := slotCost * batch
		if e, ok := sp.h.alloc.(Expander); ok {
			if grown, ok := e.Expand(l.hostedBuf, grow); ok && len(grown) == len(l.hostedBuf)+grow {
				xdebug.Infof("%s: grow slot array by %d => %d bytes", sp.h.tag, grow, len(grown))
				l.hostedBuf = grown
				sp.h.touch(int64(grow))
				l.slots = append(l.slots, slot{live: false, next: none})
				newIdx := len(l.slots) - 1
				l.appendUnusedSlack(batch - 1)
				return l.createChildInto(s, newIdx)
			}
		}
	}

	newLen := len(l.slots) + batch
	need := newLen*slotCost + s + headroom
	child, err := l.factory(need)
	if err != nil {
		l.lastErr = errors.Wrap(err, "ouroboros: factory failed while growing the slot array")
		return none, l.lastErr
	}
	newBuf := child.Alloc(newLen * slotCost)
	if newBuf == nil {
		l.lastErr = errors.New("ouroboros: new child could not host the relocated slot array")
		return none, l.lastErr
	}
	oldBuf := l.hostedBuf
	l.hostedBuf = newBuf
	l.filterInsert(newBuf) // balanced by the filterRemove when it is released

	l.slots = append(l.slots, slot{live: true, h: newHandle(child), next: none})
	newIdx := len(l.slots) - 1
	l.slots[newIdx].h.touch(int64(len(newBuf)))
	xdebug.Infof("%s: relocate slot array, %d slots => %d bytes", l.slots[newIdx].h.tag, newLen, len(newBuf))
	l.special = newIdx
	l.appendUnusedSlack(batch - 1)

	if oldBuf != nil {
		l.Deallocate(oldBuf) // the old special child claims and releases it
	}
	l.insertAtHead(newIdx)
	return newIdx, nil
}

func (l *List) addAllocatorExternal(s int) (int, error) {
	batch := l.growthBatch()
	if l.bk != nil && l.hostedBuf != nil {
		grow := slotCost * batch
		if e, ok := l.bk.(Expander); ok {
			if grown, ok := e.Expand(l.hostedBuf, grow); ok && len(grown) == len(l.hostedBuf)+grow {
				xdebug.Infof("%s: grow bookkeeping slot array by %d => %d bytes", l.ID, grow, len(grown))
				l.hostedBuf = grown
				l.slots = append(l.slots, slot{live: false, next: none})
				newIdx := len(l.slots) - 1
				l.appendUnusedSlack(batch - 1)
				return l.createChildInto(s, newIdx)
			}
		}
	}

	newLen := len(l.slots) + batch
	newBuf := l.bk.Alloc(newLen * slotCost)
	if newBuf == nil {
		l.lastErr = errors.New("external bookkeeping: could not (re)allocate the slot array")
		return none, l.lastErr
	}
	oldBuf := l.hostedBuf
	l.hostedBuf = newBuf
	xdebug.Infof("%s: relocate bookkeeping slot array, %d slots => %d bytes", l.ID, newLen, len(newBuf))
	l.slots = append(l.slots, slot{live: false, next: none})
	newIdx := len(l.slots) - 1
	l.appendUnusedSlack(batch - 1)
	if oldBuf != nil {
		if d, ok := l.bk.(Deallocator); ok {
			d.Dealloc(oldBuf)
		}
	}
	return l.createChildInto(s, newIdx)
}

// appendUnusedSlack appends n not-live placeholder slots, reserved by a
// growth batch but not yet bound to a child. createChildInto claims
// them on later growths without another relocation.
func (l *List) appendUnusedSlack(n int) {
	for i := 0; i < n; i++ {
		l.slots = append(l.slots, slot{live: false, next: none})
	}
}

// createChildInto produces a new child sized for s via the factory and
// installs it into the given (already unused) slot, at the chain head.
func (l *List) createChildInto(s, idx int) (int, error) {
	child, err := l.factory(s)
	if err != nil {
		l.lastErr = errors.Wrap(err, "factory failed to create a new child")
		return none, l.lastErr
	}
	l.slots[idx] = slot{live: true, h: newHandle(child), next: none}
	l.insertAtHead(idx)
	return idx, nil
}
