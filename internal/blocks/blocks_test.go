package blocks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distoctree/distoctree/internal/testutil"
	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/comm/local"
	"github.com/distoctree/distoctree/pkg/morton"
)

func runRanks(comms []*local.Communicator, perRank [][]morton.Key) [][]morton.Key {
	results := make([][]morton.Key, len(comms))
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c *local.Communicator) {
			defer wg.Done()
			results[i] = Build(perRank[i], comm.Communicator(c))
		}(i, c)
	}
	wg.Wait()
	return results
}

func TestBuildSingleRankCoversWholeCube(t *testing.T) {
	keys := []morton.Key{
		morton.New([3]uint32{100, 200, 300}, morton.DeepestLevel),
		morton.New([3]uint32{40000, 50000, 60000}, morton.DeepestLevel),
	}
	morton.Sort(keys)

	comms := local.New(1)
	result := runRanks(comms, [][]morton.Key{keys})
	testutil.AssertTilesRootCube(t, result)
}

func TestBuildTwoRanksContiguous(t *testing.T) {
	lower := []morton.Key{
		morton.New([3]uint32{10, 10, 10}, morton.DeepestLevel),
		morton.New([3]uint32{1000, 2000, 3000}, morton.DeepestLevel),
	}
	upper := []morton.Key{
		morton.New([3]uint32{40000, 10, 10}, morton.DeepestLevel),
		morton.New([3]uint32{60000, 60000, 60000}, morton.DeepestLevel),
	}
	morton.Sort(lower)
	morton.Sort(upper)
	// Ensure global sortedness across ranks so rank 0 precedes rank 1.
	require.True(t, morton.Less(lower[len(lower)-1], upper[0]))

	comms := local.New(2)
	result := runRanks(comms, [][]morton.Key{lower, upper})

	assert.NotEmpty(t, result[0])
	assert.NotEmpty(t, result[1])
	testutil.AssertTilesRootCube(t, result)
}

func TestBuildMiddleRankEmptyIsAbsorbedByNeighbours(t *testing.T) {
	first := []morton.Key{morton.New([3]uint32{10, 10, 10}, morton.DeepestLevel)}
	last := []morton.Key{morton.New([3]uint32{60000, 60000, 60000}, morton.DeepestLevel)}
	require.True(t, morton.Less(first[0], last[0]))

	comms := local.New(3)
	result := runRanks(comms, [][]morton.Key{first, nil, last})

	assert.NotEmpty(t, result[0])
	assert.Empty(t, result[1])
	assert.NotEmpty(t, result[2])
	testutil.AssertTilesRootCube(t, result)
}

func TestBuildAllRanksEmptyProducesNoBlocks(t *testing.T) {
	comms := local.New(2)
	result := runRanks(comms, [][]morton.Key{nil, nil})
	assert.Empty(t, result[0])
	assert.Empty(t, result[1])
}

func TestTileSingleOctantIsThatOctant(t *testing.T) {
	child := morton.Children(morton.Root)[3]
	got := Tile(morton.DeepestFirstDescendant(child), morton.DeepestLastDescendant(child))
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(child))
}

func TestTileCoversIntervalExactly(t *testing.T) {
	a := morton.New([3]uint32{100, 200, 300}, morton.DeepestLevel)
	b := morton.New([3]uint32{40000, 50000, 60000}, morton.DeepestLevel)
	require.True(t, morton.Less(a, b))

	got := Tile(a, b)
	require.NotEmpty(t, got)

	assert.True(t, morton.DeepestFirstDescendant(got[0]).Equal(a))
	assert.True(t, morton.DeepestLastDescendant(got[len(got)-1]).Equal(b))
	for i := 1; i < len(got); i++ {
		prevDLD := morton.DeepestLastDescendant(got[i-1])
		assert.True(t, morton.Successor(prevDLD).Equal(morton.DeepestFirstDescendant(got[i])))
	}
}
