package octree

// localIdxBits is the width given to the local index within a global
// id; the remaining high bits identify the origin rank. 40 bits of
// local index supports well over a trillion points per rank, far past
// any realistic single-rank point count.
const localIdxBits = 40

// PackGlobalIdx combines an origin rank and a rank-local point index
// into the single uint64 global id that travels with a point for its
// entire lifetime, per the (origin_rank, local_idx) tagging scheme.
func PackGlobalIdx(originRank, localIdx int) uint64 {
	return (uint64(originRank) << localIdxBits) | uint64(localIdx)
}

// UnpackGlobalIdx recovers the origin rank and local index from a
// global id produced by PackGlobalIdx.
func UnpackGlobalIdx(id uint64) (originRank, localIdx int) {
	return int(id >> localIdxBits), int(id & (1<<localIdxBits - 1))
}
