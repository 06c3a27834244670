// Package hyksort implements the distributed sample-sort ("hyksort")
// that assigns every rank a disjoint, globally-sorted range of Morton
// keys. Each of log_k(P) rounds samples splitters, buckets local keys
// by those splitters, exchanges buckets proportionally across the
// current sub-communicator, and recurses into k colour groups until
// every group has a single member.
package hyksort

import (
	"sort"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/errors"
	"github.com/distoctree/distoctree/pkg/morton"
)

// Sort returns this rank's share of the globally sorted multiset of
// keys: a contiguous key range such that every rank's range precedes
// the next rank's in Morton order. k must be a power of two and must
// divide the communicator size evenly at every level of recursion
// (i.e. communicator.Size() must be a power of k); any other shape is
// a topology violation, rejected before any collective is entered.
func Sort(local []morton.Key, k int, communicator comm.Communicator) ([]morton.Key, error) {
	if k < 2 || !isPowerOfTwo(k) {
		return nil, errors.New(errors.CodeTopologyViolation, "hyksort K must be a power of two, >= 2")
	}
	if !isPowerOf(communicator.Size(), k) {
		return nil, errors.New(errors.CodeTopologyViolation, "communicator size must be a power of K")
	}
	return sortRound(local, k, communicator), nil
}

func sortRound(local []morton.Key, k int, c comm.Communicator) []morton.Key {
	m := c.Size()
	sorted := append([]morton.Key(nil), local...)
	morton.Sort(sorted)

	if m == 1 {
		return sorted
	}

	// Step 1 & 2: sample local splitters, all-gather, pick k-1 global
	// splitters as evenly spaced order statistics of the gathered pool.
	localSplitters := sampleSplitters(sorted, k)
	gathered := c.AllGatherKeys(localSplitters)
	var pool []morton.Key
	for _, g := range gathered {
		pool = append(pool, g...)
	}
	morton.Sort(pool)
	globalSplitters := pickSplitters(pool, k)

	// Step 3: bucket local keys by the global splitters.
	buckets := make([][]morton.Key, k)
	for _, key := range sorted {
		b := bucketOf(key, globalSplitters)
		buckets[b] = append(buckets[b], key)
	}

	// Gather every rank's per-bucket size so each rank can compute a
	// proportional, load-balanced routing of its bucket into the
	// destination colour group's ranks.
	bucketSizes := make([][]uint64, k)
	for i := 0; i < k; i++ {
		bucketSizes[i] = c.AllGatherUint64(uint64(len(buckets[i])))
	}

	groupSize := m / k
	rank := c.Rank()
	perRankBuckets := make([][]morton.Key, m)
	for i := 0; i < k; i++ {
		groupStart := i * groupSize
		routed := routeBucket(buckets[i], bucketSizes[i], rank, groupStart, groupSize)
		for d, keys := range routed {
			perRankBuckets[groupStart+d] = append(perRankBuckets[groupStart+d], keys...)
		}
	}

	// Step 4: all-to-all exchange, then merge (a full sort of the
	// concatenation is equivalent to — and simpler than — an explicit
	// k-way merge of already-sorted runs).
	received := c.AllToAllKeys(perRankBuckets)
	morton.Sort(received)

	// Step 5: split into k colour groups (contiguous local-rank blocks,
	// so bucket 0's group ends up holding the globally smallest keys)
	// and recurse.
	color := rank / groupSize
	sub := c.Split(color, rank)
	return sortRound(received, k, sub)
}

// routeBucket splits a rank's contribution to bucket i into up to
// groupSize chunks, one per destination rank in the colour group,
// sized so the combined bucket is spread as evenly as possible across
// the group regardless of how skewed the per-rank contributions are.
// sizes holds every rank's bucket-i size, ordered by rank.
func routeBucket(mine []morton.Key, sizes []uint64, rank, groupStart, groupSize int) [][]morton.Key {
	var total uint64
	var before uint64
	for r, s := range sizes {
		if r < rank {
			before += s
		}
		total += s
	}

	chunkBoundaries := make([]uint64, groupSize+1)
	base := total / uint64(groupSize)
	rem := total % uint64(groupSize)
	var cum uint64
	for d := 0; d < groupSize; d++ {
		size := base
		if uint64(d) < rem {
			size++
		}
		cum += size
		chunkBoundaries[d+1] = cum
	}

	out := make([][]morton.Key, groupSize)
	myStart, myEnd := before, before+uint64(len(mine))
	for d := 0; d < groupSize; d++ {
		lo, hi := chunkBoundaries[d], chunkBoundaries[d+1]
		start := max64(myStart, lo)
		end := min64(myEnd, hi)
		if start < end {
			out[d] = append(out[d], mine[start-myStart:end-myStart]...)
		}
	}
	return out
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// sampleSplitters picks k-1 local order statistics of sorted as
// candidate splitters.
func sampleSplitters(sorted []morton.Key, k int) []morton.Key {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]morton.Key, 0, k-1)
	for i := 1; i < k; i++ {
		idx := i * len(sorted) / k
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		out = append(out, sorted[idx])
	}
	return out
}

// pickSplitters chooses k-1 global splitters as evenly spaced order
// statistics of the gathered splitter pool.
func pickSplitters(pool []morton.Key, k int) []morton.Key {
	if len(pool) == 0 {
		return nil
	}
	out := make([]morton.Key, 0, k-1)
	for i := 1; i < k; i++ {
		idx := i * len(pool) / k
		if idx >= len(pool) {
			idx = len(pool) - 1
		}
		out = append(out, pool[idx])
	}
	return out
}

// bucketOf returns the index of the first splitter strictly greater
// than key, clamped to len(splitters) — i.e. the bucket key belongs to
// under the convention splitters[i-1] <= bucket i keys < splitters[i].
func bucketOf(key morton.Key, splitters []morton.Key) int {
	return sort.Search(len(splitters), func(i int) bool {
		return morton.Less(key, splitters[i])
	})
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func isPowerOf(n, base int) bool {
	if n <= 0 {
		return false
	}
	for n > 1 {
		if n%base != 0 {
			return false
		}
		n /= base
	}
	return true
}
