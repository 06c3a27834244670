package balance

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distoctree/distoctree/internal/testutil"
	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/comm/local"
	"github.com/distoctree/distoctree/pkg/morton"
)

func TestLinearizeRemovesDuplicatesAndAncestors(t *testing.T) {
	coarse := morton.New([3]uint32{0, 0, 0}, 2)
	fine := morton.Children(coarse)[3] // a descendant of coarse at level 3
	dup := fine

	keys := []morton.Key{coarse, fine, dup}
	morton.Sort(keys)

	out := linearize(keys)
	assert.Len(t, out, 1)
	assert.True(t, out[0].Equal(fine))
}

func TestExpandIncludesOriginalKeyAndSiblings(t *testing.T) {
	k := morton.New([3]uint32{1 << 14, 1 << 14, 1 << 14}, 10)
	out := expand([]morton.Key{k})

	found := false
	for _, o := range out {
		if o.Equal(k) {
			found = true
		}
	}
	assert.True(t, found, "expand must retain the original key")
	assert.Greater(t, len(out), 1, "expand must add balancing siblings for a non-root key")
}

func TestExpandRootKeyAddsNothing(t *testing.T) {
	out := expand([]morton.Key{morton.Root})
	assert.Equal(t, []morton.Key{morton.Root}, out)
}

func runBalance(comms []*local.Communicator, perRank [][]morton.Key) [][]morton.Key {
	out := make([][]morton.Key, len(comms))
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c *local.Communicator) {
			defer wg.Done()
			out[i] = Balance(perRank[i], comm.Communicator(c))
		}(i, c)
	}
	wg.Wait()
	return out
}

func TestBalanceSingleRankStillTilesWholeCube(t *testing.T) {
	leaves := []morton.Key{
		morton.New([3]uint32{0, 0, 0}, 3),
		morton.New([3]uint32{1 << 14, 1 << 14, 1 << 14}, 5),
	}
	morton.Sort(leaves)

	comms := local.New(1)
	out := runBalance(comms, [][]morton.Key{leaves})
	testutil.AssertTilesRootCube(t, out)
}

func TestBalanceTwoRanksTilesWholeCube(t *testing.T) {
	lower := []morton.Key{morton.New([3]uint32{0, 0, 0}, 4)}
	upper := []morton.Key{morton.New([3]uint32{1 << 15, 1 << 15, 1 << 15}, 4)}

	comms := local.New(2)
	out := runBalance(comms, [][]morton.Key{lower, upper})
	testutil.AssertTilesRootCube(t, out)
}

func TestExpandRipplesToCoarserLevels(t *testing.T) {
	k := morton.New([3]uint32{0, 0, 0}, 8)
	out := expand([]morton.Key{k})

	levels := map[uint8]bool{}
	for _, o := range out {
		levels[o.Level] = true
	}
	// Each processed level demands cells one level coarser around its
	// parent, so every level between the seed and the root's children
	// must be represented.
	for l := uint8(1); l <= 8; l++ {
		assert.True(t, levels[l], "expansion must demand cells at level %d", l)
	}
}

func TestBalanceSingleRankKeepsFineStructure(t *testing.T) {
	fine := morton.New([3]uint32{0, 0, 0}, 6)
	coarse := morton.New([3]uint32{1 << 15, 1 << 15, 1 << 15}, 1)
	leaves := []morton.Key{fine, coarse}
	morton.Sort(leaves)

	comms := local.New(1)
	out := runBalance(comms, [][]morton.Key{leaves})

	testutil.AssertTilesRootCube(t, out)
	testutil.AssertLinear(t, out)
	testutil.AssertTwoToOneBalanced(t, out)

	containsFine := false
	for _, k := range out[0] {
		if k.Equal(fine) {
			containsFine = true
		}
	}
	assert.True(t, containsFine, "completion must keep the finest balancing cells, not retile from the brackets")
	assert.Greater(t, len(out[0]), 8, "a level-6 leaf must fragment the cube well past one block per octant")
}

func TestBalanceTwoRanksKeepsFineStructure(t *testing.T) {
	fine := morton.New([3]uint32{0, 0, 0}, 5)
	upper := morton.New([3]uint32{1 << 15, 1 << 15, 1 << 15}, 2)

	comms := local.New(2)
	out := runBalance(comms, [][]morton.Key{{fine}, {upper}})

	testutil.AssertTilesRootCube(t, out)
	testutil.AssertLinear(t, out)
	testutil.AssertTwoToOneBalanced(t, out)

	containsFine := false
	for _, k := range out[0] {
		if k.Equal(fine) {
			containsFine = true
		}
	}
	assert.True(t, containsFine)
}
