// Package domain establishes the cubic bounding box every rank encodes
// points against, and the point-to-Morton-key encoding itself.
package domain

import (
	"math"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/errors"
	"github.com/distoctree/distoctree/pkg/morton"
)

// inflationFactor is the relative epsilon the reduced global bounding
// box is inflated by, so that points lying exactly on the original
// bounds still encode strictly inside the domain. It must be identical
// on every rank, which it is automatically since the inflated cube is
// a pure function of the (already identical) reduced bounds.
const inflationFactor = 1e-5

// Domain is an axis-aligned cube that strictly encloses every point on
// every rank. All ranks hold bit-identical copies once constructed via
// FromGlobalPoints.
type Domain struct {
	Origin   [3]float64
	Diameter [3]float64
}

// FromLocalPoints builds a Domain from this rank's points alone, with
// no collective communication. Useful for single-rank callers;
// distributed construction must use
// FromGlobalPoints so every rank agrees on the same cube.
func FromLocalPoints(coords [][3]float64) (Domain, error) {
	if len(coords) == 0 {
		return Domain{}, errors.New(errors.CodeEmptyPointSet, "cannot build a domain from zero points")
	}
	minB, maxB := bounds(coords)
	return inflate(minB, maxB), nil
}

// FromGlobalPoints builds a Domain by all-reducing this rank's local
// bounding box with every other rank's, then inflating the result by a
// small relative epsilon so that boundary points encode unambiguously.
// Every rank must call this with the same communicator; the returned
// Domain is bitwise identical across ranks because the reduction is
// performed with deterministic min/max operators only.
func FromGlobalPoints(coords [][3]float64, communicator comm.Communicator) (Domain, error) {
	var localMin, localMax [3]float64
	if len(coords) == 0 {
		// Contribute neutral elements so the reduction is still well
		// defined; a rank with no points imposes no bound of its own.
		localMin = [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
		localMax = [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	} else {
		localMin, localMax = bounds(coords)
	}

	globalMin := communicator.AllReduceFloat64Slice(localMin[:], comm.MinOp)
	globalMax := communicator.AllReduceFloat64Slice(localMax[:], comm.MaxOp)

	if math.IsInf(globalMin[0], 1) {
		return Domain{}, errors.New(errors.CodeEmptyPointSet, "cannot build a domain: no points on any rank")
	}

	return inflate([3]float64{globalMin[0], globalMin[1], globalMin[2]}, [3]float64{globalMax[0], globalMax[1], globalMax[2]}), nil
}

func bounds(coords [][3]float64) (min, max [3]float64) {
	min = coords[0]
	max = coords[0]
	for _, c := range coords[1:] {
		for i := 0; i < 3; i++ {
			if c[i] < min[i] {
				min[i] = c[i]
			}
			if c[i] > max[i] {
				max[i] = c[i]
			}
		}
	}
	return min, max
}

func inflate(min, max [3]float64) Domain {
	extent := max[0] - min[0]
	if e := max[1] - min[1]; e > extent {
		extent = e
	}
	if e := max[2] - min[2]; e > extent {
		extent = e
	}
	eps := inflationFactor * extent
	if eps == 0 {
		// Degenerate point set (a single point, or coincident points):
		// fall back to a fixed absolute epsilon so the cube is
		// non-empty.
		eps = inflationFactor
	}

	var d Domain
	for i := 0; i < 3; i++ {
		d.Origin[i] = min[i] - eps
		d.Diameter[i] = (max[i] - min[i]) + 2*eps
	}
	return d
}

// Contains reports whether coord lies inside the domain, its boundary
// included.
func (d Domain) Contains(coord [3]float64) bool {
	for i := 0; i < 3; i++ {
		if coord[i] < d.Origin[i] || coord[i] > d.Origin[i]+d.Diameter[i] {
			return false
		}
	}
	return true
}

// Encode computes the deepest-level Morton key of coord against d.
// Encoding a point outside d is a programming error and is rejected.
func (d Domain) Encode(coord [3]float64) (morton.Key, error) {
	if !d.Contains(coord) {
		return morton.Key{}, errors.New(errors.CodePointOutsideDomain, "point lies outside the declared domain")
	}
	var anchor [3]uint32
	for i := 0; i < 3; i++ {
		if math.IsNaN(coord[i]) || math.IsInf(coord[i], 0) {
			return morton.Key{}, errors.New(errors.CodeInvalidCoordinate, "coordinate is NaN or infinite")
		}
		frac := (coord[i] - d.Origin[i]) / d.Diameter[i]
		v := int64(math.Floor(frac * float64(uint64(1)<<morton.DeepestLevel)))
		if v < 0 {
			v = 0
		}
		if max := int64(1)<<morton.DeepestLevel - 1; v > max {
			v = max
		}
		anchor[i] = uint32(v)
	}
	return morton.New(anchor, morton.DeepestLevel), nil
}
