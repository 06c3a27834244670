// Package blocks implements the SSB08 "Blocks" algorithm: converting a
// rank's sorted, hyksort-partitioned key range into the minimal list of
// same-size-or-coarser blocks that exactly tiles that range, ready for
// local refinement. Corner ranks extend their range to the boundary of
// the root cube so the union of every rank's blocks covers it entirely.
package blocks

import (
	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

// Build returns the minimal list of blocks tiling this rank's share of
// the root cube. sortedLocal must already be sorted in Morton order
// (the output of hyksort.Sort is suitable directly). An empty
// sortedLocal is valid — the rank owns no keys and contributes no
// blocks, leaving its neighbours to cover the gap — and still
// participates in the one collective this function issues.
func Build(sortedLocal []morton.Key, communicator comm.Communicator) []morton.Key {
	rank, size := communicator.Rank(), communicator.Size()

	var localFirst []morton.Key
	if len(sortedLocal) > 0 {
		localFirst = []morton.Key{sortedLocal[0]}
	}
	allFirsts := communicator.AllGatherKeys(localFirst)

	if len(sortedLocal) == 0 {
		return nil
	}

	isFirstNonEmpty := true
	for r := 0; r < rank; r++ {
		if len(allFirsts[r]) > 0 {
			isFirstNonEmpty = false
			break
		}
	}

	var nextFirst morton.Key
	isLastNonEmpty := true
	for r := rank + 1; r < size; r++ {
		if len(allFirsts[r]) > 0 {
			nextFirst = allFirsts[r][0]
			isLastNonEmpty = false
			break
		}
	}

	a := sortedLocal[0]
	if isFirstNonEmpty {
		a = morton.DeepestFirstDescendant(morton.Root)
	}
	b := sortedLocal[len(sortedLocal)-1]
	if isLastNonEmpty {
		b = morton.DeepestLastDescendant(morton.Root)
	} else {
		b = morton.Predecessor(nextFirst)
	}

	return Tile(a, b)
}

// Tile produces the minimal block cover of the closed interval [a, b]
// (both deepest-level keys, a <= b). It greedily grows each block from
// its starting key as coarse as the remaining span allows, then
// advances past the block's deepest last descendant. Besides Build,
// the 2:1 balancer uses it to fill the gaps between balancing keys.
func Tile(a, b morton.Key) []morton.Key {
	rootDLD := morton.DeepestLastDescendant(morton.Root)

	var out []morton.Key
	cur := a
	for !morton.Less(b, cur) {
		block := largestBlockAt(cur, b)
		out = append(out, block)

		dld := morton.DeepestLastDescendant(block)
		if dld.Equal(rootDLD) {
			break
		}
		cur = morton.Successor(dld)
	}
	return out
}

// largestBlockAt finds the coarsest-level ancestor of cur whose deepest
// first descendant is cur itself (i.e. cur sits at the very start of
// that ancestor's cell) and whose deepest last descendant does not
// exceed b. Both constraints are monotonic in level — finer levels
// satisfy them more easily — so a single walk from DeepestLevel up
// toward Root, stopping at the first violation, finds the maximal
// valid block.
func largestBlockAt(cur, b morton.Key) morton.Key {
	block := morton.New(cur.Anchor, morton.DeepestLevel)
	for level := int(morton.DeepestLevel) - 1; level >= 0; level-- {
		candidate := morton.New(cur.Anchor, uint8(level))
		if !morton.DeepestFirstDescendant(candidate).Equal(cur) {
			break
		}
		if morton.Less(b, morton.DeepestLastDescendant(candidate)) {
			break
		}
		block = candidate
	}
	return block
}
