package child

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Mmap is a Region-shaped bump allocator whose backing buffer is a real,
// OS-backed anonymous mmap(2) mapping instead of Go heap memory. Grounded
// in golang.org/x/sys/unix, used here for Mmap/Munmap the way aistore's
// own sys package wraps raw syscalls for host resource queries.
//
// Mmap never stores Go pointers inside its mapping (nothing here is
// reinterpreted as anything but raw bytes), so it is safe to use as an
// ordinary List child in either bookkeeping mode.
type Mmap struct {
	mu   sync.Mutex
	buf  []byte
	off  int
	live int
}

// NewMmap maps size bytes, rounded up by the caller as needed; no
// rounding is done here so callers can exercise exact-size behavior in
// tests.
func NewMmap(size int) (*Mmap, error) {
	if size <= 0 {
		size = 1
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Mmap{buf: buf}, nil
}

func (m *Mmap) Alignment() int { return unix.Getpagesize() }

func (m *Mmap) Alloc(n int) []byte {
	if n < 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.off+n > len(m.buf) {
		return nil
	}
	b := m.buf[m.off : m.off+n : m.off+n]
	m.off += n
	m.live++
	return b
}

func (m *Mmap) Owns(b []byte) bool {
	if len(b) == 0 || len(m.buf) == 0 {
		return false
	}
	lo := addr(m.buf)
	hi := lo + uintptr(len(m.buf))
	a := addr(b)
	return a >= lo && a+uintptr(len(b)) <= hi
}

func (m *Mmap) Dealloc(b []byte) {
	if !m.Owns(b) {
		return
	}
	m.mu.Lock()
	m.live--
	if m.live <= 0 {
		m.live = 0
		m.off = 0
	}
	m.mu.Unlock()
}

func (m *Mmap) DeallocAll() {
	m.mu.Lock()
	m.off = 0
	m.live = 0
	m.mu.Unlock()
}

// Release unmaps the backing buffer. Not part of list.Allocator: the
// List never calls it directly, since child teardown is kept out
// of scope beyond DeallocAll — call it only when discarding an Mmap
// child outside of any List (e.g. in tests).
func (m *Mmap) Release() error {
	m.mu.Lock()
	buf := m.buf
	m.buf = nil
	m.mu.Unlock()
	if buf == nil {
		return nil
	}
	return unix.Munmap(buf)
}

// Cap returns the mapping's total size.
func (m *Mmap) Cap() int { return len(m.buf) }
