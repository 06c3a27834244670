package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distoctree/distoctree/pkg/morton"
)

// AssertTilesRootCube flattens each rank's keys in rank order (which
// is global Morton order for any partitioned tree or block cover) and
// checks the result tiles the entire root cube with no gap and no
// overlap.
func AssertTilesRootCube(t *testing.T, perRank [][]morton.Key) {
	t.Helper()
	var all []morton.Key
	for _, r := range perRank {
		all = append(all, r...)
	}
	require.NotEmpty(t, all)

	rootDFD := morton.DeepestFirstDescendant(morton.Root)
	rootDLD := morton.DeepestLastDescendant(morton.Root)

	assert.True(t, morton.DeepestFirstDescendant(all[0]).Equal(rootDFD), "first key must start at the cube origin")
	assert.True(t, morton.DeepestLastDescendant(all[len(all)-1]).Equal(rootDLD), "last key must end at the cube's far corner")

	for i := 1; i < len(all); i++ {
		prevDLD := morton.DeepestLastDescendant(all[i-1])
		curDFD := morton.DeepestFirstDescendant(all[i])
		assert.True(t, morton.Successor(prevDLD).Equal(curDFD), "key %d must start exactly where key %d ends", i, i-1)
	}
}

// AssertStrictlySorted checks each rank's keys increase strictly in
// Morton order and that rank r's last key precedes rank r+1's first.
func AssertStrictlySorted(t *testing.T, perRank [][]morton.Key) {
	t.Helper()
	for rank, keys := range perRank {
		for i := 1; i < len(keys); i++ {
			assert.True(t, morton.Less(keys[i-1], keys[i]), "rank %d keys out of order at %d", rank, i)
		}
	}
	var prevLast *morton.Key
	for rank, keys := range perRank {
		if len(keys) == 0 {
			continue
		}
		if prevLast != nil {
			assert.True(t, morton.Less(*prevLast, keys[0]), "rank %d range must follow its predecessor's", rank)
		}
		last := keys[len(keys)-1]
		prevLast = &last
	}
}

// AssertLinear checks no key anywhere is an ancestor of any other.
func AssertLinear(t *testing.T, perRank [][]morton.Key) {
	t.Helper()
	var all []morton.Key
	for _, r := range perRank {
		all = append(all, r...)
	}
	for i := range all {
		for j := range all {
			if i != j {
				assert.False(t, morton.IsAncestor(all[i], all[j]), "%v is an ancestor of %v", all[i], all[j])
			}
		}
	}
}

// AssertTwoToOneBalanced checks the global 2:1 property: for every key
// a, any key that equals, lies inside, or contains a same-level
// neighbour of a differs from a by at most one level.
func AssertTwoToOneBalanced(t *testing.T, perRank [][]morton.Key) {
	t.Helper()
	var all []morton.Key
	for _, r := range perRank {
		all = append(all, r...)
	}
	for _, a := range all {
		for _, n := range morton.Neighbours(a) {
			for _, b := range all {
				if !b.Equal(n) && !morton.IsAncestor(b, n) && !morton.IsAncestor(n, b) {
					continue
				}
				diff := int(a.Level) - int(b.Level)
				if diff < 0 {
					diff = -diff
				}
				assert.LessOrEqual(t, diff, 1, "keys %v and %v violate 2:1 balance", a, b)
			}
		}
	}
}
