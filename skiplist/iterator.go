package skiplist

// Iterator walks level 0 forward, starting from wherever Find,
// LowerBound, UpperBound or Begin positioned it. It pins the node it
// points to for as long as it's alive, so the reclamation path in Erase
// can never free a node an iterator is still resting on; Release gives
// that pin back.
type Iterator[K, V any] struct {
	c      *Container[K, V]
	node   *node[K, V]
	pinned bool
}

// Valid reports whether the iterator is not at End().
func (it *Iterator[K, V]) Valid() bool {
	return it.node != nil && !it.node.isTail()
}

// Key returns the current element's key. Calling it on an invalid
// iterator is a caller contract violation, same as At's out-of-range.
func (it *Iterator[K, V]) Key() K {
	if !it.Valid() {
		panic("skiplist: Key on invalid iterator")
	}
	return it.node.entry.key
}

// Value returns the current element's value.
func (it *Iterator[K, V]) Value() V {
	if !it.Valid() {
		panic("skiplist: Value on invalid iterator")
	}
	return it.node.entry.value
}

// Next advances the iterator by one element at level 0, releasing its pin
// on the old node and acquiring one on the new position.
func (it *Iterator[K, V]) Next() {
	if it.node == nil || it.node.isTail() {
		return
	}
	nxt := it.node.next(0, it.c.pool)
	if nxt == nil {
		nxt = it.c.tail()
	}
	nxt.pin()
	old := it.node
	wasPinned := it.pinned
	it.node, it.pinned = nxt, true
	if wasPinned {
		it.c.unpinNode(old)
	}
}

// Release gives back the iterator's pin on its current node. After
// Release the iterator must not be used again.
func (it *Iterator[K, V]) Release() {
	if it.pinned && it.node != nil {
		it.c.unpinNode(it.node)
		it.pinned = false
	}
	it.node = nil
}

// Equal reports whether it and other point at the same node, the
// comparison iterators use to detect reaching End().
func (it *Iterator[K, V]) Equal(other *Iterator[K, V]) bool {
	return it.node == other.node
}
