package child

import "go.uber.org/atomic"

// Stats decorates any list.Allocator with per-child "bytes in use"
// tracking, an external statistics wrapper collaborator. Modeled
// directly on memsys.slabStats — atomic hit counters plus an idle
// timestamp — using go.uber.org/atomic as a drop-in for a vendored
// in-tree atomic fork (see DESIGN.md for why the upstream module
// replaces the in-tree fork).
type Stats struct {
	inner interface {
		Alignment() int
		Alloc(n int) []byte
	}
	outstanding atomic.Int64
	hits        atomic.Uint64
	frees       atomic.Uint64
}

// Wrap decorates inner with bytes-outstanding and hit-count tracking.
// inner may additionally implement Owner, Expander, Reallocator, and
// AllClearer; Stats forwards to whichever of those it supports via its
// own matching methods below, so the wrapped value still satisfies the
// full surface the List might ask of it.
func Wrap(inner interface {
	Alignment() int
	Alloc(n int) []byte
}) *Stats {
	return &Stats{inner: inner}
}

func (s *Stats) Alignment() int { return s.inner.Alignment() }

func (s *Stats) Alloc(n int) []byte {
	b := s.inner.Alloc(n)
	if b != nil {
		s.outstanding.Add(int64(len(b)))
		s.hits.Inc()
	}
	return b
}

func (s *Stats) Owns(b []byte) bool {
	o, ok := s.inner.(interface{ Owns([]byte) bool })
	return ok && o.Owns(b)
}

func (s *Stats) Expand(b []byte, delta int) ([]byte, bool) {
	e, ok := s.inner.(interface {
		Expand([]byte, int) ([]byte, bool)
	})
	if !ok {
		return nil, false
	}
	grown, ok := e.Expand(b, delta)
	if ok {
		s.outstanding.Add(int64(delta))
	}
	return grown, ok
}

func (s *Stats) Realloc(b []byte, n int) ([]byte, bool) {
	r, ok := s.inner.(interface {
		Realloc([]byte, int) ([]byte, bool)
	})
	if !ok {
		return nil, false
	}
	resized, ok := r.Realloc(b, n)
	if ok {
		s.outstanding.Add(int64(n - len(b)))
	}
	return resized, ok
}

func (s *Stats) Dealloc(b []byte) {
	d, ok := s.inner.(interface{ Dealloc([]byte) })
	if !ok {
		return
	}
	d.Dealloc(b)
	s.outstanding.Sub(int64(len(b)))
	s.frees.Inc()
}

func (s *Stats) DeallocAll() {
	if c, ok := s.inner.(interface{ DeallocAll() }); ok {
		c.DeallocAll()
	}
	s.outstanding.Store(0)
}

// OutstandingBytes reports the bytes currently handed out by the
// wrapped allocator and not yet released.
func (s *Stats) OutstandingBytes() int64 { return s.outstanding.Load() }

// Hits reports the number of successful Alloc calls.
func (s *Stats) Hits() uint64 { return s.hits.Load() }

// Frees reports the number of Dealloc calls.
func (s *Stats) Frees() uint64 { return s.frees.Load() }
