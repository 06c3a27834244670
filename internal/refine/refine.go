// Package refine implements per-block local tree refinement: recursive
// octant subdivision of each block until every leaf holds at most
// NCRIT points (or bottoms out at the deepest addressable level),
// keeping the octree complete by emitting empty leaves rather than
// pruning them.
package refine

import (
	"context"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
	"github.com/distoctree/distoctree/pkg/parallel"
)

// LeafNode is a completed leaf: its key and the points (if any) whose
// Morton encoding falls inside it.
type LeafNode struct {
	Key    morton.Key
	Points []comm.Payload
}

// blockWork is one block's share of points, bundled so it can travel
// through the worker pool as a single input value.
type blockWork struct {
	block  morton.Key
	points []comm.Payload
}

// Build refines every block against points, emitting leaves in Morton
// order (blocks are assumed already Morton-sorted, as internal/blocks
// produces; each block's own recursive children are emitted in Morton
// order, so the concatenated result across all blocks is fully
// sorted). Blocks never share points, so their subdivisions run on
// the worker pool in parallel; only the point partitioning and the
// final concatenation are sequential.
func Build(blocks []morton.Key, points []comm.Payload, ncrit int) []LeafNode {
	remaining := points
	work := make([]blockWork, len(blocks))
	for i, b := range blocks {
		mine, rest := partition(remaining, func(p comm.Payload) bool { return belongsTo(b, p.Key) })
		remaining = rest
		work[i] = blockWork{block: b, points: mine}
	}

	if len(work) == 0 {
		return nil
	}

	results := parallel.Map(context.Background(), parallel.DefaultConfig(), work, func(_ context.Context, w blockWork) ([]LeafNode, error) {
		return subdivide(w.block, w.points, ncrit), nil
	})

	var out []LeafNode
	for _, r := range results {
		out = append(out, r.Value...)
	}
	return out
}

// subdivide recursively splits block until it satisfies the NCRIT
// bound or bottoms out at DeepestLevel, returning its leaves in
// Morton order.
func subdivide(block morton.Key, points []comm.Payload, ncrit int) []LeafNode {
	if len(points) <= ncrit || block.Level == morton.DeepestLevel {
		return []LeafNode{{Key: block, Points: points}}
	}

	children := morton.Children(block)
	var out []LeafNode
	remaining := points
	for _, c := range children {
		mine, rest := partition(remaining, func(p comm.Payload) bool { return belongsTo(c, p.Key) })
		remaining = rest
		out = append(out, subdivide(c, mine, ncrit)...)
	}
	return out
}

// belongsTo reports whether a point key lies inside block: either
// block is itself the point's deepest-level key, or block is a proper
// ancestor of it.
func belongsTo(block, pointKey morton.Key) bool {
	if block.Level == morton.DeepestLevel {
		return block.Equal(pointKey)
	}
	return morton.IsAncestor(block, pointKey)
}

// partition splits points into those satisfying pred and the rest,
// preserving relative order within each group.
func partition(points []comm.Payload, pred func(comm.Payload) bool) (matched, rest []comm.Payload) {
	for _, p := range points {
		if pred(p) {
			matched = append(matched, p)
		} else {
			rest = append(rest, p)
		}
	}
	return matched, rest
}
