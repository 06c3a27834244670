// Package octree is the orchestrator: it drives domain construction,
// key encoding, hyksort, block partitioning, local refinement,
// optional 2:1 balancing, and final point-to-leaf redistribution into
// a single DistributedTree entry point.
package octree

import (
	"github.com/distoctree/distoctree/internal/refine"
	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/domain"
)

// Point is a single input point: its coordinates and the global
// identity it carries through sorting, refinement, and
// redistribution. It is exactly comm.Payload's shape — the value the
// communicator's collectives already know how to move — so no
// conversion is needed when a point crosses a rank boundary.
type Point = comm.Payload

// LeafNode is a completed leaf of the tree: its key and the points, if
// any, whose encoding falls inside it. Defined by internal/refine,
// which is also where it is produced; aliased here so callers only
// need to import this package.
type LeafNode = refine.LeafNode

// DistributedTree is the result of constructing the octree on this
// rank: the shared global domain, and this rank's disjoint, globally
// sorted slice of leaves.
type DistributedTree struct {
	Domain   domain.Domain
	Leaves   []LeafNode
	Balanced bool
}

// PointCount returns the number of points held across this rank's
// leaves.
func (t *DistributedTree) PointCount() int {
	n := 0
	for _, l := range t.Leaves {
		n += len(l.Points)
	}
	return n
}
