// Package skiplist implements the ordered, concurrent, persistence-shaped
// container described by this module: a skip list whose node links are
// tagged persistent offsets (tpo.Offset), resolved through a pmpool.Pool
// collaborator rather than raw pointers, so the structure stays valid
// across a pool remap.
package skiplist

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/owlkv/pskiplist/pmpool"
	"github.com/owlkv/pskiplist/skliperrs"
	"github.com/owlkv/pskiplist/skiplog"
	"github.com/owlkv/pskiplist/tpo"
)

// DefaultHeight and DefaultBranch are H and B from the persistent-layout
// design: max node height and the inverse of the level-promotion
// probability (expected height ≈ 1/(1 − 1/B)).
const (
	DefaultHeight = 8
	DefaultBranch = 4
)

// Comparator is a strict-weak-order "less than" relation. Equality is
// derived from it (!cmp(a,b) && !cmp(b,a)); implementations never need a
// separate equality operator.
type Comparator[K any] func(a, b K) bool

// Container is the skip-list core: a head sentinel at max height, a tail
// sentinel at height 0, and the levelled chain of nodes strung between
// them. All structural navigation resolves tpo.Offset values through pool,
// so Container survives the pool being remapped to a new base address.
type Container[K, V any] struct {
	pool   pmpool.Pool
	cmp    Comparator[K]
	log    *skiplog.Logger
	height int
	branch int

	headRef tpo.Offset
	tailRef tpo.Offset

	size atomic.Int64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Container at construction time.
type Option[K, V any] func(*config)

type config struct {
	height int
	branch int
	seed   int64
	hasSeed bool
	log    *skiplog.Logger
}

// WithHeight overrides DefaultHeight.
func WithHeight[K, V any](h int) Option[K, V] {
	return func(c *config) { c.height = h }
}

// WithBranch overrides DefaultBranch.
func WithBranch[K, V any](b int) Option[K, V] {
	return func(c *config) { c.branch = b }
}

// WithSeed pins the height RNG to a deterministic seed, for reproducible
// tests; production callers should leave this unset.
func WithSeed[K, V any](seed int64) Option[K, V] {
	return func(c *config) { c.seed, c.hasSeed = seed, true }
}

// WithLogger attaches a structured logger; the default discards.
func WithLogger[K, V any](l *skiplog.Logger) Option[K, V] {
	return func(c *config) { c.log = l }
}

// New allocates the sentinel nodes inside pool and returns an empty
// Container. Allocation failure is fatal per the error-handling design:
// there is no recoverable path for a pool that cannot even place its
// sentinels, so New returns the wrapped error for the caller to log and
// terminate on, rather than pretending a partially built container works.
func New[K, V any](pool pmpool.Pool, cmp Comparator[K], opts ...Option[K, V]) (*Container[K, V], error) {
	cfg := config{height: DefaultHeight, branch: DefaultBranch}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.height < 1 {
		panic("skiplist: height must be >= 1")
	}
	if cfg.branch <= 1 {
		panic("skiplist: branch must be > 1")
	}
	if cfg.log == nil {
		cfg.log = skiplog.Discard()
	}

	seed := time.Now().UnixNano()
	if cfg.hasSeed {
		seed = cfg.seed
	}

	c := &Container[K, V]{
		pool:   pool,
		cmp:    cmp,
		log:    cfg.log,
		height: cfg.height,
		branch: cfg.branch,
		rng:    rand.New(rand.NewSource(seed)),
	}

	tx, err := pool.Begin()
	if err != nil {
		return nil, skliperrs.Wrap(skliperrs.ErrAlloc, err)
	}

	tail := newSentinel[K, V](0)
	tailRef, err := pmpool.AllocT(pool, tx, tail)
	if err != nil {
		_ = tx.Abort()
		return nil, err
	}
	tail.self = tailRef

	head := newSentinel[K, V](uint8(cfg.height))
	headRef, err := pmpool.AllocT(pool, tx, head)
	if err != nil {
		_ = tx.Abort()
		return nil, err
	}
	head.self = headRef

	for i := 0; i < cfg.height; i++ {
		head.setNext(i, tailRef)
	}

	if err := tx.Commit(); err != nil {
		return nil, skliperrs.Wrap(skliperrs.ErrTxAborted, err)
	}
	for i := 0; i < cfg.height; i++ {
		pool.Flush(head.Base(pool, i), 8)
	}
	pool.Drain()

	c.headRef, c.tailRef = headRef, tailRef
	return c, nil
}

// Base is a small addressing helper used only to hand Flush a concrete
// address for the i-th next slot; it has no bearing on resolution, which
// always goes through the registry keyed by pool identity.
func (n *node[K, V]) Base(pool pmpool.Pool, level int) uintptr {
	return pool.Base() + n.self.Offset() + uintptr(level)*8
}

func (c *Container[K, V]) head() *node[K, V] { return pmpool.ResolveT[node[K, V]](c.pool, c.headRef) }
func (c *Container[K, V]) tail() *node[K, V] { return pmpool.ResolveT[node[K, V]](c.pool, c.tailRef) }

// Size returns the persistent element counter (sentinels excluded).
func (c *Container[K, V]) Size() int { return int(c.size.Load()) }

func (c *Container[K, V]) randomHeight() uint8 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	h := 1
	for h < c.height && c.rng.Intn(c.branch) == 0 {
		h++
	}
	return uint8(h)
}

func (c *Container[K, V]) equal(a, b K) bool {
	return !c.cmp(a, b) && !c.cmp(b, a)
}

// findLE is the top-down probabilistic descent every public operation
// starts with. It returns the node found (or the greatest node strictly
// less than key), whether an exact match was found, and the per-level
// predecessor vector — length == c.height, reusable and safe to mutate by
// the caller.
func (c *Container[K, V]) findLE(key K) (found *node[K, V], ok bool, pre []*node[K, V]) {
	pre = make([]*node[K, V], c.height)
	node := c.head()
	tail := c.tail()

	for level := c.height - 1; level >= 0; level-- {
		for {
			nxt := node.next(level, c.pool)
			if nxt != nil && nxt != tail && c.cmp(nxt.entry.key, key) {
				node = nxt
				continue
			}
			pre[level] = node
			break
		}
	}

	nxt := pre[0].next(0, c.pool)
	if nxt != nil && nxt != tail && c.equal(nxt.entry.key, key) {
		return nxt, true, pre
	}
	if pre[0] != c.head() && !pre[0].isTail() && c.equal(pre[0].entry.key, key) {
		return pre[0], true, pre
	}
	return pre[0], false, pre
}

// TryEmplace inserts (key, value) if key is not already present. It
// reports the resident value (the one just inserted, or the one already
// there) and whether an insertion actually happened.
func (c *Container[K, V]) TryEmplace(key K, value V) (resident V, inserted bool, err error) {
	found, ok, pre := c.findLE(key)
	if ok {
		return found.entry.value, false, nil
	}

	h := c.randomHeight()

	tx, err := c.pool.Begin()
	if err != nil {
		return resident, false, skliperrs.Wrap(skliperrs.ErrAlloc, err)
	}

	n := newNode[K, V](key, value, h)
	ref, err := pmpool.AllocT(c.pool, tx, n)
	if err != nil {
		_ = tx.Abort()
		return resident, false, err
	}
	n.self = ref

	for i := 0; i < int(h); i++ {
		// Link forward first, then publish — the level-0 publication below
		// is the linearization point; a concurrent reader can never observe
		// the new node before its own links are in place.
		n.setNext(i, pre[i].nextOffset(i, c.pool))
		pre[i].setNext(i, ref)
	}

	if err := tx.Commit(); err != nil {
		return resident, false, skliperrs.Wrap(skliperrs.ErrTxAborted, err)
	}
	for i := 0; i < int(h); i++ {
		c.pool.Flush(pre[i].Base(c.pool, i), 8)
	}
	c.pool.Drain()

	c.size.Add(1)
	return value, true, nil
}

// Erase removes key if present, reporting 1 if it removed something and 0
// otherwise (matching the spec's return-count convention rather than a
// bool, so repeated erases are trivially idempotent to check).
func (c *Container[K, V]) Erase(key K) (int, error) {
	found, ok, pre := c.findLE(key)
	if !ok {
		return 0, nil
	}

	tx, err := c.pool.Begin()
	if err != nil {
		return 0, skliperrs.Wrap(skliperrs.ErrAlloc, err)
	}

	// Top-down unlink: a reader descending from a higher level can never
	// land on the victim after it has been skipped there and is about to
	// vanish at a lower level.
	for i := int(found.height) - 1; i >= 0; i-- {
		pre[i].setNext(i, found.nextOffset(i, c.pool))
	}

	if err := tx.Commit(); err != nil {
		return 0, skliperrs.Wrap(skliperrs.ErrTxAborted, err)
	}
	for i := int(found.height) - 1; i >= 0; i-- {
		c.pool.Flush(pre[i].Base(c.pool, i), 8)
	}
	c.pool.Drain()

	c.size.Add(-1)
	c.unpinNode(found)
	return 1, nil
}

// unpinNode drops the list's own membership reference on n. Reclamation
// only actually happens once every iterator pin has also been released
// (see Iterator.Release); this is the refcount-gated deferred reclamation
// the concurrency model mandates.
func (c *Container[K, V]) unpinNode(n *node[K, V]) {
	if n.unpin() == 0 {
		tx, err := c.pool.Begin()
		if err != nil {
			c.log.Error("skiplist: reclaim alloc failed", "err", err)
			return
		}
		pmpool.FreeT(c.pool, tx, n.self)
		_ = tx.Commit()
	}
}

// Find returns an iterator positioned at key, or End() if key is absent.
func (c *Container[K, V]) Find(key K) *Iterator[K, V] {
	found, ok, _ := c.findLE(key)
	if !ok {
		return c.End()
	}
	return c.iteratorAt(found)
}

// LowerBound returns an iterator at the smallest key >= k, or End().
func (c *Container[K, V]) LowerBound(key K) *Iterator[K, V] {
	found, ok, pre := c.findLE(key)
	if ok {
		return c.iteratorAt(found)
	}
	nxt := pre[0].next(0, c.pool)
	if nxt == nil || nxt == c.tail() {
		return c.End()
	}
	return c.iteratorAt(nxt)
}

// UpperBound returns an iterator at the smallest key > k, or End().
func (c *Container[K, V]) UpperBound(key K) *Iterator[K, V] {
	_, _, pre := c.findLE(key)
	n := pre[0].next(0, c.pool)
	tail := c.tail()
	for n != nil && n != tail && !c.cmp(key, n.entry.key) {
		n = n.next(0, c.pool)
	}
	if n == nil || n == tail {
		return c.End()
	}
	return c.iteratorAt(n)
}

// At walks level 0 from head, returning the (key, value) at position pos.
// Out-of-range pos is a caller contract violation, per spec; it panics
// rather than silently returning a zero value.
func (c *Container[K, V]) At(pos int) (key K, value V) {
	if pos < 0 {
		panic("skiplist: At: negative index")
	}
	tail := c.tail()
	n := c.head().next(0, c.pool)
	for ; pos > 0 && n != nil && n != tail; pos-- {
		n = n.next(0, c.pool)
	}
	if n == nil || n == tail {
		panic("skiplist: At: index out of range")
	}
	return n.entry.key, n.entry.value
}

// Begin returns an iterator at the first element, or End() if empty.
func (c *Container[K, V]) Begin() *Iterator[K, V] {
	n := c.head().next(0, c.pool)
	if n == nil || n == c.tail() {
		return c.End()
	}
	return c.iteratorAt(n)
}

// End returns the canonical past-the-end iterator. Per the open question
// in the design notes, end() is always the tail node pointer — never nil —
// so reaching it is detectable by Iterator.Valid without a nil check
// leaking into caller code.
func (c *Container[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{c: c, node: c.tail()}
}

func (c *Container[K, V]) iteratorAt(n *node[K, V]) *Iterator[K, V] {
	n.pin()
	return &Iterator[K, V]{c: c, node: n, pinned: true}
}
