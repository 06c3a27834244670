// Package balance implements the distributed 2:1 balance pass: for
// every leaf key, the balancing siblings of its parent's neighbours
// are emitted so that no two neighbour-adjacent leaves in the final
// tree differ by more than one level. The expanded key set is
// deduplicated, linearised, redistributed across ranks by the
// original partition boundaries, and completed into a linear octree
// that keeps every balancing key.
package balance

import (
	"sort"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"

	"github.com/distoctree/distoctree/internal/blocks"
)

// Balance takes this rank's sorted local leaf keys (the original,
// unbalanced partition — its own first key is this rank's boundary)
// and returns the balanced, redistributed, and completed key range
// this rank owns afterwards.
func Balance(localLeafKeys []morton.Key, communicator comm.Communicator) []morton.Key {
	expanded := expand(localLeafKeys)
	morton.Sort(expanded)
	expanded = linearize(expanded)

	var myFirst []morton.Key
	if len(localLeafKeys) > 0 {
		myFirst = []morton.Key{localLeafKeys[0]}
	}
	firsts := communicator.AllGatherKeys(myFirst)
	boundaries := nonEmptyBoundaries(firsts)

	buckets := make([][]morton.Key, communicator.Size())
	for _, k := range expanded {
		r := destRank(k, boundaries)
		buckets[r] = append(buckets[r], k)
	}

	received := communicator.AllToAllKeys(buckets)
	morton.Sort(received)
	received = linearize(received)

	return complete(received, communicator)
}

// expand emits, level by level from the deepest up, every working key
// plus all children of its parent's same-level neighbours — the
// balancing siblings set. The parent of each processed key, and every
// neighbour of that parent whose children were emitted, joins the
// next-coarser working level, so the constraint ripples upward:
// siblings demanded at level L in turn demand level L-1 cells around
// their parents, and so on to the root. Without the ripple a leaf
// several levels finer than a distant neighbour would leave the
// intermediate rings uncovered.
func expand(keys []morton.Key) []morton.Key {
	work := make([][]morton.Key, morton.DeepestLevel+1)
	inWork := make(map[morton.Key]bool, len(keys))
	for _, k := range keys {
		if !inWork[k] {
			inWork[k] = true
			work[k.Level] = append(work[k.Level], k)
		}
	}

	var out []morton.Key
	emitted := make(map[morton.Key]bool, len(keys))
	emit := func(k morton.Key) {
		if !emitted[k] {
			emitted[k] = true
			out = append(out, k)
		}
	}

	for level := int(morton.DeepestLevel); level >= 1; level-- {
		for _, k := range work[level] {
			emit(k)
			parent := morton.Parent(k)
			for _, n := range morton.Neighbours(parent) {
				for _, c := range morton.Children(n) {
					emit(c)
				}
				if !inWork[n] {
					inWork[n] = true
					work[n.Level] = append(work[n.Level], n)
				}
			}
			if !inWork[parent] {
				inWork[parent] = true
				work[parent.Level] = append(work[parent.Level], parent)
			}
		}
	}
	for _, k := range work[0] {
		emit(k)
	}
	return out
}

// linearize removes duplicates and, of any two keys where one is an
// ancestor of the other, keeps only the finer (descendant) one. keys
// must already be sorted.
func linearize(keys []morton.Key) []morton.Key {
	if len(keys) == 0 {
		return keys
	}
	out := make([]morton.Key, 0, len(keys))
	out = append(out, keys[0])
	for i := 1; i < len(keys); i++ {
		last := out[len(out)-1]
		cur := keys[i]
		if last.Equal(cur) {
			continue
		}
		if morton.IsAncestor(last, cur) {
			out[len(out)-1] = cur
			continue
		}
		out = append(out, cur)
	}
	return out
}

// complete turns this rank's sorted, linearised balancing keys into
// its share of a complete linear octree: every key is kept as a leaf,
// and the gaps before, between, and after them are filled with
// minimal cover blocks, so the union across ranks tiles the root cube
// without discarding the fine structure the expansion produced.
func complete(sorted []morton.Key, communicator comm.Communicator) []morton.Key {
	rank, size := communicator.Rank(), communicator.Size()

	var myFirst []morton.Key
	if len(sorted) > 0 {
		myFirst = []morton.Key{sorted[0]}
	}
	allFirsts := communicator.AllGatherKeys(myFirst)

	if len(sorted) == 0 {
		return nil
	}

	isFirstNonEmpty := true
	for r := 0; r < rank; r++ {
		if len(allFirsts[r]) > 0 {
			isFirstNonEmpty = false
			break
		}
	}
	isLastNonEmpty := true
	var nextFirst morton.Key
	for r := rank + 1; r < size; r++ {
		if len(allFirsts[r]) > 0 {
			nextFirst = allFirsts[r][0]
			isLastNonEmpty = false
			break
		}
	}

	rootDLD := morton.DeepestLastDescendant(morton.Root)
	cur := morton.DeepestFirstDescendant(sorted[0])
	if isFirstNonEmpty {
		cur = morton.DeepestFirstDescendant(morton.Root)
	}
	end := rootDLD
	if !isLastNonEmpty {
		end = morton.Predecessor(morton.DeepestFirstDescendant(nextFirst))
	}

	var out []morton.Key
	for _, k := range sorted {
		kDFD := morton.DeepestFirstDescendant(k)
		if morton.Less(end, kDFD) {
			// k shares its anchor with the next rank's first key at a
			// coarser level; its whole span belongs to that rank. The
			// remaining gap up to end is filled after the loop.
			break
		}
		if morton.Less(cur, kDFD) {
			out = append(out, blocks.Tile(cur, morton.Predecessor(kDFD))...)
		}
		kDLD := morton.DeepestLastDescendant(k)
		if morton.Less(end, kDLD) {
			// k is an ancestor of the next rank's first key: keep only
			// the part of its span this rank owns, as finer blocks.
			out = append(out, blocks.Tile(kDFD, end)...)
			return out
		}
		out = append(out, k)
		if kDLD.Equal(rootDLD) {
			return out
		}
		cur = morton.Successor(kDLD)
	}
	if !morton.Less(end, cur) {
		out = append(out, blocks.Tile(cur, end)...)
	}
	return out
}

type boundary struct {
	key  morton.Key
	rank int
}

// nonEmptyBoundaries flattens the all-gathered per-rank first keys
// (empty for ranks that own no range) into a rank-ordered boundary
// list, already sorted by key since ranks own disjoint, increasing
// ranges.
func nonEmptyBoundaries(firsts [][]morton.Key) []boundary {
	var out []boundary
	for r, f := range firsts {
		if len(f) > 0 {
			out = append(out, boundary{key: f[0], rank: r})
		}
	}
	return out
}

// destRank returns the rank owning k: the rank whose boundary is the
// greatest one not exceeding k, or the first boundary rank if k falls
// below every boundary (the corner-extension case).
func destRank(k morton.Key, boundaries []boundary) int {
	if len(boundaries) == 0 {
		return 0
	}
	idx := sort.Search(len(boundaries), func(i int) bool {
		return morton.Less(k, boundaries[i].key)
	})
	if idx == 0 {
		return boundaries[0].rank
	}
	return boundaries[idx-1].rank
}
