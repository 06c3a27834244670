package domain

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distoctree/distoctree/internal/testutil"
	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/comm/local"
	"github.com/distoctree/distoctree/pkg/errors"
	"github.com/distoctree/distoctree/pkg/morton"
)

func TestFromLocalPointsRejectsEmptySet(t *testing.T) {
	_, err := FromLocalPoints(nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeEmptyPointSet, errors.Code(err))
}

func TestFromLocalPointsStrictlyContainsBounds(t *testing.T) {
	coords := [][3]float64{{0, 0, 0}, {1, 1, 1}, {0.5, 0.2, 0.9}}
	d, err := FromLocalPoints(coords)
	require.NoError(t, err)

	for _, c := range coords {
		assert.True(t, d.Contains(c), "point %v must lie inside the inflated domain", c)
		for i := 0; i < 3; i++ {
			assert.Less(t, d.Origin[i], c[i])
			assert.Greater(t, d.Origin[i]+d.Diameter[i], c[i])
		}
	}
}

func TestFromLocalPointsDegenerateSinglePoint(t *testing.T) {
	d, err := FromLocalPoints([][3]float64{{0.5, 0.5, 0.5}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Greater(t, d.Diameter[i], 0.0, "a single point still needs a non-empty cube")
	}
	_, err = d.Encode([3]float64{0.5, 0.5, 0.5})
	assert.NoError(t, err)
}

func TestFromGlobalPointsBitwiseIdenticalAcrossRanks(t *testing.T) {
	perRank := testutil.SplitRoundRobin(testutil.UniformPoints(300, 42), 4)

	comms := local.New(4)
	domains := make([]Domain, 4)
	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c *local.Communicator) {
			defer wg.Done()
			domains[i], errs[i] = FromGlobalPoints(perRank[i], comm.Communicator(c))
		}(i, c)
	}
	wg.Wait()

	for rank := 0; rank < 4; rank++ {
		require.NoError(t, errs[rank])
		assert.Equal(t, domains[0], domains[rank], "rank %d domain differs", rank)
	}
}

func TestFromGlobalPointsEmptyRankContributesNoBound(t *testing.T) {
	points := [][3]float64{{0.1, 0.2, 0.3}, {0.9, 0.8, 0.7}}

	comms := local.New(2)
	domains := make([]Domain, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c *local.Communicator) {
			defer wg.Done()
			var mine [][3]float64
			if i == 0 {
				mine = points
			}
			domains[i], errs[i] = FromGlobalPoints(mine, comm.Communicator(c))
		}(i, c)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, domains[0], domains[1])
	for _, p := range points {
		assert.True(t, domains[1].Contains(p), "the empty rank's domain must still cover every global point")
	}
}

func TestFromGlobalPointsAllRanksEmptyFails(t *testing.T) {
	comms := local.New(2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c *local.Communicator) {
			defer wg.Done()
			_, errs[i] = FromGlobalPoints(nil, comm.Communicator(c))
		}(i, c)
	}
	wg.Wait()

	for rank, err := range errs {
		require.Error(t, err, "rank %d", rank)
		assert.Equal(t, errors.CodeEmptyPointSet, errors.Code(err))
	}
}

func TestEncodeKnownAnchorsInUnitCube(t *testing.T) {
	// An exact unit cube, no inflation, so the expected anchors are
	// exact powers of two.
	d := Domain{Origin: [3]float64{0, 0, 0}, Diameter: [3]float64{1, 1, 1}}

	key, err := d.Encode([3]float64{0.25, 0.5, 0.75})
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{1 << 14, 1 << 15, 3 << 14}, key.Anchor)
	assert.Equal(t, uint8(morton.DeepestLevel), key.Level)
}

func TestEncodeRejectsOutsideAndNonFinite(t *testing.T) {
	d := Domain{Origin: [3]float64{0, 0, 0}, Diameter: [3]float64{1, 1, 1}}

	_, err := d.Encode([3]float64{1.5, 0.5, 0.5})
	require.Error(t, err)
	assert.Equal(t, errors.CodePointOutsideDomain, errors.Code(err))

	_, err = d.Encode([3]float64{math.NaN(), 0.5, 0.5})
	require.Error(t, err)

	_, err = d.Encode([3]float64{math.Inf(1), 0.5, 0.5})
	require.Error(t, err)
}

func TestEncodeBoundaryPointClampsInsideGrid(t *testing.T) {
	d := Domain{Origin: [3]float64{0, 0, 0}, Diameter: [3]float64{1, 1, 1}}

	key, err := d.Encode([3]float64{1, 1, 1})
	require.NoError(t, err)
	limit := uint32(1<<morton.DeepestLevel - 1)
	assert.Equal(t, [3]uint32{limit, limit, limit}, key.Anchor)
}
