package hyksort

import (
	"sort"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/errors"
	"github.com/distoctree/distoctree/pkg/morton"
)

// SortPayloads is Sort's point-carrying counterpart: it sorts by each
// payload's embedded Morton key, moving the point data through the
// same splitter-bucket-exchange rounds as the key, so that downstream
// block construction and refinement can assume every point is already
// collocated with the key range that covers it.
func SortPayloads(local []comm.Payload, k int, communicator comm.Communicator) ([]comm.Payload, error) {
	if k < 2 || !isPowerOfTwo(k) {
		return nil, errors.New(errors.CodeTopologyViolation, "hyksort K must be a power of two, >= 2")
	}
	if !isPowerOf(communicator.Size(), k) {
		return nil, errors.New(errors.CodeTopologyViolation, "communicator size must be a power of K")
	}
	return sortPayloadRound(local, k, communicator), nil
}

func sortPayloadRound(local []comm.Payload, k int, c comm.Communicator) []comm.Payload {
	m := c.Size()
	sorted := append([]comm.Payload(nil), local...)
	sortPayloadsByKey(sorted)

	if m == 1 {
		return sorted
	}

	keysOnly := make([]morton.Key, len(sorted))
	for i, p := range sorted {
		keysOnly[i] = p.Key
	}

	localSplitters := sampleSplitters(keysOnly, k)
	gathered := c.AllGatherKeys(localSplitters)
	var pool []morton.Key
	for _, g := range gathered {
		pool = append(pool, g...)
	}
	morton.Sort(pool)
	globalSplitters := pickSplitters(pool, k)

	buckets := make([][]comm.Payload, k)
	for _, p := range sorted {
		b := bucketOf(p.Key, globalSplitters)
		buckets[b] = append(buckets[b], p)
	}

	bucketSizes := make([][]uint64, k)
	for i := 0; i < k; i++ {
		bucketSizes[i] = c.AllGatherUint64(uint64(len(buckets[i])))
	}

	groupSize := m / k
	rank := c.Rank()
	perRankBuckets := make([][]comm.Payload, m)
	for i := 0; i < k; i++ {
		groupStart := i * groupSize
		routed := routePayloadBucket(buckets[i], bucketSizes[i], rank, groupStart, groupSize)
		for d, items := range routed {
			perRankBuckets[groupStart+d] = append(perRankBuckets[groupStart+d], items...)
		}
	}

	received := c.AllToAllPayloads(perRankBuckets)
	sortPayloadsByKey(received)

	color := rank / groupSize
	sub := c.Split(color, rank)
	return sortPayloadRound(received, k, sub)
}

func sortPayloadsByKey(items []comm.Payload) {
	sort.Slice(items, func(i, j int) bool { return morton.Less(items[i].Key, items[j].Key) })
}

// routePayloadBucket mirrors routeBucket's proportional chunking but
// over comm.Payload items instead of bare keys.
func routePayloadBucket(mine []comm.Payload, sizes []uint64, rank, groupStart, groupSize int) [][]comm.Payload {
	var total, before uint64
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

	out := make([][]comm.Payload, groupSize)
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
