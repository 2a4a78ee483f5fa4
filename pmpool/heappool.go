package pmpool

import (
	"crypto/rand"
	"sync"

	"github.com/owlkv/pskiplist/skiplog"
)

const heapPoolAlignment = 8

func align(size uintptr) uintptr {
	if size == 0 {
		size = heapPoolAlignment
	}
	return (size + heapPoolAlignment - 1) &^ (heapPoolAlignment - 1)
}

// HeapPool is a plain-heap-backed reference Pool. It hands out
// monotonically increasing offsets from a bump allocator and backs Flush
// with a log line rather than a real durability primitive — there is no
// medium to flush to on the regular Go heap. It exists so the skiplist
// package has a concrete, always-available Pool to build and test
// against; HeapPool.Remap is the hook tests use to exercise the "pool
// moved to a new base address" crash-recovery scenario without a real
// restart.
type HeapPool struct {
	mu   sync.Mutex
	base uintptr
	uuid [16]byte
	next uintptr
	log  *skiplog.Logger
}

// NewHeapPool creates an empty HeapPool with a fresh UUID.
func NewHeapPool() *HeapPool {
	return NewHeapPoolWithLogger(skiplog.Discard())
}

// NewHeapPoolWithLogger is like NewHeapPool but lets the caller supply a
// logger for Flush/Drain/Remap events.
func NewHeapPoolWithLogger(log *skiplog.Logger) *HeapPool {
	var id [16]byte
	_, _ = rand.Read(id[:])
	if log == nil {
		log = skiplog.Discard()
	}
	return &HeapPool{
		base: 1, // never 0, so a valid Offset's Vptr is never confused with null
		uuid: id,
		next: heapPoolAlignment,
		log:  log,
	}
}

func (p *HeapPool) Base() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base
}

func (p *HeapPool) UUID() [16]byte { return p.uuid }

func (p *HeapPool) Begin() (Tx, error) {
	return &heapTx{pool: p}, nil
}

func (p *HeapPool) Alloc(tx Tx, size uintptr) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	off := p.next
	p.next += align(size)
	return off, nil
}

func (p *HeapPool) Free(tx Tx, off uintptr) {
	// Bump allocator: offsets are never reused within a HeapPool's
	// lifetime, so physical space isn't reclaimed here. The registry
	// entry is what actually matters for correctness (see FreeT).
}

func (p *HeapPool) Flush(addr, length uintptr) {
	p.log.Flushed(addr, length)
}

func (p *HeapPool) Drain() {}

// Remap simulates a process restart in which the backing region is
// remapped to a different virtual base address. Offsets previously handed
// out by Alloc, and everything resolvable through the registry, remain
// valid: only Base() changes.
func (p *HeapPool) Remap(newBase uintptr) {
	p.mu.Lock()
	p.base = newBase
	p.mu.Unlock()
	p.log.Recovered(p.uuid, newBase)
}

type heapTx struct {
	pool *HeapPool
	done bool
}

func (t *heapTx) Commit() error {
	t.done = true
	return nil
}

func (t *heapTx) Abort() error {
	t.done = true
	return nil
}
