package skiplist

import (
	"sync/atomic"
	"unsafe"

	"github.com/owlkv/pskiplist/pmpool"
	"github.com/owlkv/pskiplist/tpo"
)

type entry[K, V any] struct {
	key   K
	value V
}

// node is the skip-list node: one key/value entry, a node height, a
// reference count, and one atomic TPO per level. Sentinels (head, tail)
// carry a zero-value entry and are told apart by height: head has the
// container's max height, tail has height 0.
type node[K, V any] struct {
	entry    entry[K, V]
	nexts    []atomic.Uint64 // len == height; holds tpo.Offset words
	height   uint8
	refcount atomic.Int32
	deleted  atomic.Bool
	self     tpo.Offset // this node's own persistent identity, set once at allocation
}

func newNode[K, V any](key K, value V, height uint8) *node[K, V] {
	n := &node[K, V]{
		entry:  entry[K, V]{key: key, value: value},
		nexts:  make([]atomic.Uint64, height),
		height: height,
	}
	n.refcount.Store(1) // one implicit reference: membership in the list
	return n
}

func newSentinel[K, V any](height uint8) *node[K, V] {
	n := &node[K, V]{nexts: make([]atomic.Uint64, height), height: height}
	n.refcount.Store(1)
	return n
}

func (n *node[K, V]) isTail() bool { return n.height == 0 }

func (n *node[K, V]) pin()   { n.refcount.Add(1) }
func (n *node[K, V]) unpin() int32 { return n.refcount.Add(-1) }

// nextOffset loads nexts[level], performing observation-time cleaning
// (§4.1): if the word is dirty, it CASes a clean copy into place and asks
// the pool to flush the slot, amortizing durability onto whichever thread
// happens to observe the dirty word first.
func (n *node[K, V]) nextOffset(level int, pool pmpool.Pool) tpo.Offset {
	slot := &n.nexts[level]
	addr := uintptr(unsafe.Pointer(slot))
	return tpo.CleanSlot(slot, addr, unsafe.Sizeof(uint64(0)), pool.Flush)
}

// next resolves nexts[level] into a live node pointer.
func (n *node[K, V]) next(level int, pool pmpool.Pool) *node[K, V] {
	off := n.nextOffset(level, pool)
	if off.IsNull() {
		return nil
	}
	return pmpool.ResolveT[node[K, V]](pool, off)
}

// setNext stores off into nexts[level], marked dirty. The caller's pool
// transaction is responsible for the surrounding durability boundary; the
// dirty bit is what lets a reader observe and flush the link even if it
// runs before the writing transaction's own flush/drain completes.
func (n *node[K, V]) setNext(level int, off tpo.Offset) {
	if level < 0 || level >= int(n.height) {
		panic("skiplist: set_next at level >= node height")
	}
	n.nexts[level].Store(uint64(off.Dirty()))
}
