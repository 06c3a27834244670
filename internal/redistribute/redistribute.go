// Package redistribute implements the final point-to-leaf handoff:
// after construction (and optional balancing) fixes the global leaf
// partition, each rank's points — which travelled with hyksort's key
// movement, not necessarily to their eventual leaf owner — are routed
// to whichever rank now owns the leaf their Morton key falls inside.
package redistribute

import (
	"sort"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

// Points routes localPoints to the rank owning each point's enclosing
// leaf, given localLeafKeys — this rank's own sorted leaf range after
// construction (and balancing, if enabled). Every rank learns the
// global partition by an all-gather of first leaf keys, bins its
// points by owning rank via a binary search over those boundaries,
// and all-to-alls them. Global indices travel with the payload.
func Points(localLeafKeys []morton.Key, localPoints []comm.Payload, communicator comm.Communicator) []comm.Payload {
	var myFirst []morton.Key
	if len(localLeafKeys) > 0 {
		myFirst = []morton.Key{localLeafKeys[0]}
	}
	firsts := communicator.AllGatherKeys(myFirst)
	boundaries := nonEmptyBoundaries(firsts)

	buckets := make([][]comm.Payload, communicator.Size())
	for _, p := range localPoints {
		r := destRank(p.Key, boundaries)
		buckets[r] = append(buckets[r], p)
	}

	received := communicator.AllToAllPayloads(buckets)
	sort.Slice(received, func(i, j int) bool { return morton.Less(received[i].Key, received[j].Key) })
	return received
}

type boundary struct {
	key  morton.Key
	rank int
}

func nonEmptyBoundaries(firsts [][]morton.Key) []boundary {
	var out []boundary
	for r, f := range firsts {
		if len(f) > 0 {
			out = append(out, boundary{key: f[0], rank: r})
		}
	}
	return out
}

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
