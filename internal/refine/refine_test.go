package refine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

func randomPayloads(n int, rng *rand.Rand) []comm.Payload {
	out := make([]comm.Payload, n)
	for i := range out {
		anchor := [3]uint32{
			uint32(rng.Intn(1 << morton.DeepestLevel)),
			uint32(rng.Intn(1 << morton.DeepestLevel)),
			uint32(rng.Intn(1 << morton.DeepestLevel)),
		}
		out[i] = comm.Payload{Key: morton.New(anchor, morton.DeepestLevel), GlobalIdx: uint64(i)}
	}
	return out
}

func totalPoints(leaves []LeafNode) int {
	n := 0
	for _, l := range leaves {
		n += len(l.Points)
	}
	return n
}

func TestBuildRespectsNCRIT(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := randomPayloads(5000, rng)
	blocks := []morton.Key{morton.Root}

	leaves := Build(blocks, points, 150)

	assert.Equal(t, len(points), totalPoints(leaves))
	for _, l := range leaves {
		if l.Key.Level < morton.DeepestLevel {
			assert.LessOrEqual(t, len(l.Points), 150)
		}
	}
}

func TestBuildEmitsEmptyLeavesForCompleteness(t *testing.T) {
	// A single dense cluster of points in one octant forces the other
	// 7 children of the root to be emitted as empty leaves rather than
	// dropped.
	points := make([]comm.Payload, 200)
	for i := range points {
		points[i] = comm.Payload{Key: morton.New([3]uint32{10, 10, 10}, morton.DeepestLevel), GlobalIdx: uint64(i)}
	}
	leaves := Build([]morton.Key{morton.Root}, points, 150)

	empty := 0
	for _, l := range leaves {
		if len(l.Points) == 0 {
			empty++
		}
	}
	assert.Greater(t, empty, 0)
	assert.Equal(t, 200, totalPoints(leaves))
}

func TestBuildOutputIsMortonOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	points := randomPayloads(1000, rng)
	leaves := Build([]morton.Key{morton.Root}, points, 50)

	for i := 1; i < len(leaves); i++ {
		assert.True(t, morton.Less(leaves[i-1].Key, leaves[i].Key))
	}
}

func TestBuildAtDeepestLevelStopsEvenOverNCRIT(t *testing.T) {
	// All points share the exact same deepest-level key: no subdivision
	// can ever separate them, so the single leaf must exceed NCRIT.
	points := make([]comm.Payload, 10)
	for i := range points {
		points[i] = comm.Payload{Key: morton.New([3]uint32{5, 5, 5}, morton.DeepestLevel), GlobalIdx: uint64(i)}
	}
	leaves := Build([]morton.Key{morton.Root}, points, 2)

	var deepest []LeafNode
	for _, l := range leaves {
		if l.Key.Level == morton.DeepestLevel && l.Key.Anchor == [3]uint32{5, 5, 5} {
			deepest = append(deepest, l)
		}
	}
	if assert.Len(t, deepest, 1) {
		assert.Len(t, deepest[0].Points, 10)
	}
}
