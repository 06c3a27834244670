// Package testutil provides the point-cloud fixtures and octree
// invariant assertions the pipeline's tests share.
package testutil

import (
	"math/rand"
)

// UniformPoints draws n points uniformly from the unit cube with a
// fixed seed, so every run of a test sees the same cloud.
func UniformPoints(n int, seed int64) [][3]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][3]float64, n)
	for i := range out {
		out[i] = [3]float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	return out
}

// CornerClusterPoints draws n points from Uniform(0, 0.01)^3 — a tight
// cluster at the cube origin — plus one far point at (0.99, 0.99,
// 0.99). The cluster forces deep refinement while the far point sits
// alone in a coarse leaf, the most level-skewed shape a test can ask
// for.
func CornerClusterPoints(n int, seed int64) [][3]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][3]float64, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, [3]float64{
			rng.Float64() * 0.01,
			rng.Float64() * 0.01,
			rng.Float64() * 0.01,
		})
	}
	return append(out, [3]float64{0.99, 0.99, 0.99})
}

// SplitRoundRobin deals points across ranks by row index, decoupling a
// point's origin rank from its spatial position so redistribution has
// real work to do.
func SplitRoundRobin(points [][3]float64, ranks int) [][][3]float64 {
	perRank := make([][][3]float64, ranks)
	for i, p := range points {
		perRank[i%ranks] = append(perRank[i%ranks], p)
	}
	return perRank
}
