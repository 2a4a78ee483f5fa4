package pmpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/owlkv/pskiplist/tpo"
)

type widget struct {
	val int
}

func TestAllocResolveFree(t *testing.T) {
	p := NewHeapPool()
	tx, err := p.Begin()
	require.NoError(t, err)

	w := &widget{val: 42}
	off, err := AllocT(p, tx, w)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got := ResolveT[widget](p, off)
	require.NotNil(t, got)
	require.Equal(t, 42, got.val)

	tx2, err := p.Begin()
	require.NoError(t, err)
	FreeT(p, tx2, off)
	require.NoError(t, tx2.Commit())

	require.Nil(t, ResolveT[widget](p, off))
}

func TestResolveNullIsNil(t *testing.T) {
	p := NewHeapPool()
	var off tpo.Offset
	require.Nil(t, ResolveT[widget](p, off))
}

func TestRemapKeepsOffsetsValid(t *testing.T) {
	p := NewHeapPool()
	tx, err := p.Begin()
	require.NoError(t, err)
	w := &widget{val: 7}
	off, err := AllocT(p, tx, w)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	oldBase := p.Base()
	p.Remap(oldBase + 0x10000)
	require.NotEqual(t, oldBase, p.Base())

	got := ResolveT[widget](p, off)
	require.NotNil(t, got)
	require.Equal(t, 7, got.val)
}

func TestDistinctPoolsDoNotLeakRegistryEntries(t *testing.T) {
	p1 := NewHeapPool()
	p2 := NewHeapPool()

	tx1, _ := p1.Begin()
	w := &widget{val: 1}
	off, err := AllocT(p1, tx1, w)
	require.NoError(t, err)
	require.NoError(t, tx1.Commit())

	require.Nil(t, ResolveT[widget](p2, off), "a pool must not resolve another pool's offsets")
}
