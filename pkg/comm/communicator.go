// Package comm defines the collective-communication abstraction the
// distributed octree pipeline is written against. It deliberately omits
// point-to-point messaging: every operation in the construction pipeline
// is a collective over the whole (sub-)communicator.
package comm

import "github.com/distoctree/distoctree/pkg/morton"

// ReduceOp names a deterministic, associative reduction. Only Min and
// Max are exposed — floating-point sums are not deterministic across
// rank counts and are never used by the construction pipeline.
type ReduceOp int

const (
	MinOp ReduceOp = iota
	MaxOp
)

// Payload bundles a point's coordinates, global id, and Morton key for
// transit across an AllToAll point-redistribution exchange.
type Payload struct {
	Key       morton.Key
	X, Y, Z   float64
	GlobalIdx uint64
}

// Communicator is the SPMD collective surface the construction pipeline
// (hyksort, block partition, balancing, redistribution) is implemented
// against. All methods are collective: every rank in the group must
// call the same method, in the same order, with compatibly-shaped
// arguments, or the call blocks forever — there is no timeout or
// cancellation, matching the fate-sharing model of a real communicator.
type Communicator interface {
	// Rank returns this process's index within the group, in [0, Size()).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int

	// AllReduceUint64 combines one uint64 per rank with op and returns
	// the identical combined value to every rank.
	AllReduceUint64(local uint64, op ReduceOp) uint64
	// AllReduceFloat64Slice combines equal-length float64 slices
	// elementwise with op and returns the identical result to every
	// rank.
	AllReduceFloat64Slice(local []float64, op ReduceOp) []float64

	// AllGatherKeys returns, to every rank, the full set of per-rank key
	// slices ordered by sender rank.
	AllGatherKeys(local []morton.Key) [][]morton.Key
	// AllGatherUint64 returns, to every rank, one uint64 per rank
	// ordered by sender rank.
	AllGatherUint64(local uint64) []uint64

	// AllToAllKeys exchanges key buckets: buckets[j] holds the keys this
	// rank is sending to rank j. The return value is the concatenation,
	// ordered by sender rank, of the buckets every rank (this one
	// included) addressed to this rank.
	AllToAllKeys(buckets [][]morton.Key) []morton.Key
	// AllToAllPayloads is AllToAllKeys for point payloads.
	AllToAllPayloads(buckets [][]Payload) []Payload

	// Split partitions the group by color: ranks sharing a color form a
	// new communicator, renumbered and ordered by key (ties broken by
	// original rank), exactly as MPI_Comm_split. Ranks passing different
	// colors never observe each other again.
	Split(color, key int) Communicator

	// Barrier blocks until every rank in the group has called it.
	Barrier()
}
