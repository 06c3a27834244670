package morton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildrenParentRoundTrip(t *testing.T) {
	keys := []Key{
		Root,
		New([3]uint32{0, 0, 0}, 3),
		New([3]uint32{1 << 12, 1 << 13, 3 << 12}, 4),
	}

	for _, k := range keys {
		children := Children(k)
		for i, c := range children {
			require.Equal(t, k.Level+1, c.Level)
			assert.Truef(t, Parent(c).Equal(k), "parent(children(k)[%d]) != k for %v", i, k)
		}
	}
}

func TestChildrenAreMortonOrdered(t *testing.T) {
	children := Children(Root)
	for i := 1; i < len(children); i++ {
		assert.True(t, Less(children[i-1], children[i]))
	}
}

func TestFinestAncestor(t *testing.T) {
	a := New([3]uint32{0, 0, 0}, 4)
	b := New([3]uint32{1 << 12, 0, 0}, 4)

	fa := FinestAncestor(a, b)
	assert.True(t, IsAncestor(fa, DeepestFirstDescendant(a)) || fa.Equal(a))
	assert.True(t, IsAncestor(fa, DeepestFirstDescendant(b)) || fa.Equal(b))

	// fa must be maximal: no deeper common ancestor exists.
	for l := fa.Level + 1; l <= a.Level; l++ {
		ta := New(a.Anchor, l)
		tb := New(b.Anchor, l)
		assert.False(t, ta.Equal(tb), "level %d should not be a common ancestor", l)
	}
}

func TestNeighboursInteriorKey(t *testing.T) {
	// A key away from every boundary at a coarse level has the full 26.
	k := New([3]uint32{1 << 14, 1 << 14, 1 << 14}, 2)
	ns := Neighbours(k)
	assert.Len(t, ns, 26)
	for _, n := range ns {
		assert.Equal(t, k.Level, n.Level)
		assert.False(t, n.Equal(k))
	}
}

func TestNeighboursRootHasNone(t *testing.T) {
	assert.Empty(t, Neighbours(Root))
}

func TestNeighboursCornerKeyFewerThan26(t *testing.T) {
	k := New([3]uint32{0, 0, 0}, 2)
	ns := Neighbours(k)
	assert.Less(t, len(ns), 26)
	assert.NotEmpty(t, ns)
}

func TestEncodeDecodeUnitCubeS3(t *testing.T) {
	// (0.25, 0.5, 0.75) in the unit cube at DeepestLevel=16.
	anchor := [3]uint32{1 << 14, 1 << 15, 3 << 14}
	k := New(anchor, DeepestLevel)
	assert.Equal(t, anchor, k.Anchor)

	ancestor1 := New(anchor, 1)
	assert.Equal(t, [3]uint32{0, 1 << 15, 1 << 15}, ancestor1.Anchor)
	assert.True(t, IsAncestor(ancestor1, k))
}

func TestCompareOrdersAncestorBeforeDescendant(t *testing.T) {
	parent := New([3]uint32{0, 0, 0}, 3)
	children := Children(parent)
	assert.True(t, Less(parent, children[0]))
	for _, c := range children[1:] {
		assert.True(t, Less(children[0], c) || children[0].Equal(c))
	}
}

func TestSuccessorAdvancesPastDLD(t *testing.T) {
	k := New([3]uint32{0, 0, 0}, 3)
	dld := DeepestLastDescendant(k)
	next := Successor(dld)
	assert.True(t, Less(dld, next))
	assert.False(t, IsAncestor(New(k.Anchor, k.Level), next) && next.Equal(dld))
}

func TestIsSortedAndSort(t *testing.T) {
	keys := []Key{
		New([3]uint32{1 << 15, 0, 0}, 1),
		Root,
		New([3]uint32{0, 0, 0}, 1),
	}
	Sort(keys)
	assert.True(t, IsSorted(keys))
}

func TestPackedRoundTrip(t *testing.T) {
	keys := []Key{
		Root,
		New([3]uint32{1 << 14, 1 << 15, 3 << 14}, DeepestLevel),
		New([3]uint32{1 << 15, 0, 1 << 15}, 4),
	}
	for _, k := range keys {
		assert.True(t, FromPacked(k.Packed()).Equal(k), "round trip of %v", k)
	}
}

func TestPackedPreservesOrder(t *testing.T) {
	a := New([3]uint32{0, 0, 0}, 3)
	b := New([3]uint32{1 << 14, 0, 0}, 3)
	assert.Less(t, a.Packed(), b.Packed(), "packed representation must preserve key order")
}
