// Package pmpool defines the persistent-memory pool collaborator that the
// skiplist core depends on (spec §6: pool_base_from, pool_uuid_from,
// tx_begin/commit/abort, alloc_persistent<T>/free_persistent<T>,
// flush/drain), plus a plain-heap reference implementation good enough to
// drive the skiplist in tests without a real PMDK-backed pool.
//
// A real persistent-memory backend (libpmemobj, go-pmem) is out of scope
// for this module, same as spec.md says; HeapPool exists so the skiplist
// package has something concrete to compile and test against, and
// pmpool/mmappool demonstrates the same contract over a real mmap'd file
// for the crash-recovery scenario.
package pmpool

import (
	"sync"
	"unsafe"

	"github.com/owlkv/pskiplist/skliperrs"
	"github.com/owlkv/pskiplist/tpo"
)

// Tx is a scoped durable transaction. All allocation, deallocation and
// linked-field updates made by a single public skiplist operation run
// inside one Tx, per spec §6.
type Tx interface {
	Commit() error
	Abort() error
}

// Pool is the persistent-memory pool collaborator.
type Pool interface {
	// Base returns the pool's current base address. It changes across a
	// remap (e.g. a process restart remapping the backing file at a
	// different virtual address) even though offsets handed out by Alloc
	// remain valid.
	Base() uintptr
	// UUID returns the pool's stable identifier, constant across remaps.
	UUID() [16]byte
	// Begin opens a new transaction.
	Begin() (Tx, error)
	// Alloc reserves size bytes inside the pool and returns their offset.
	Alloc(tx Tx, size uintptr) (uintptr, error)
	// Free releases the allocation at off.
	Free(tx Tx, off uintptr)
	// Flush requests a durable flush of [addr, addr+length).
	Flush(addr, length uintptr)
	// Drain waits for all outstanding flushes to complete.
	Drain()
}

// registry bridges offsets handed out by a Pool to the actual Go values
// allocated for them. A real PMDK/go-pmem backend places the bytes of T
// directly inside the pool's mapped region and resolves a TPO via raw
// pointer arithmetic; stock Go's moving-aware, type-aware garbage
// collector does not let us safely reinterpret pool bytes as an arbitrary
// generic T, so this reference implementation keeps the live value on the
// normal Go heap and uses the pool's (UUID, offset) pair — exactly the two
// pieces of identity spec §6 says a TPO resolution needs — as the lookup
// key. The offset itself still comes from Pool.Alloc, so the bookkeeping
// (how many bytes are "in use", Free availability) is genuine.
var registry sync.Map // registryKey -> any

type registryKey struct {
	uuid [16]byte
	off  uintptr
}

// AllocT reserves room for v inside p (within tx) and registers v under the
// returned offset. The returned Offset is what callers store into nexts
// slots, head/tail refs, and so on.
func AllocT[T any](p Pool, tx Tx, v *T) (tpo.Offset, error) {
	off, err := p.Alloc(tx, unsafe.Sizeof(*v))
	if err != nil {
		return 0, skliperrs.Wrap(skliperrs.ErrAlloc, err)
	}
	registry.Store(registryKey{p.UUID(), off}, v)
	return tpo.FromOffset(off, false, false), nil
}

// ResolveT resolves off into a live *T, or nil if off is null or unknown to
// this pool (e.g. it has already been freed).
func ResolveT[T any](p Pool, off tpo.Offset) *T {
	if off.IsNull() {
		return nil
	}
	v, ok := registry.Load(registryKey{p.UUID(), off.Offset()})
	if !ok {
		return nil
	}
	return v.(*T)
}

// FreeT releases the allocation at off, both from the pool's own
// bookkeeping and from the resolution registry.
func FreeT(p Pool, tx Tx, off tpo.Offset) {
	registry.Delete(registryKey{p.UUID(), off.Offset()})
	p.Free(tx, off.Offset())
}
