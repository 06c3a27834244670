// Package storage is the optional persistence adapter: it serializes
// a constructed DistributedTree's leaves and points into a relational
// store through GORM, so a finished tree can be inspected or reloaded
// without re-running construction.
package storage

import "time"

// LeafRecord is the row shape for one leaf of one construction run.
// Anchor/Level round-trip a morton.Key without importing the morton
// package into the storage schema, keeping the model layer free of
// construction-internal types.
type LeafRecord struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TreeID     string    `gorm:"column:tree_id;type:varchar(64);index"`
	AnchorX    uint32    `gorm:"column:anchor_x"`
	AnchorY    uint32    `gorm:"column:anchor_y"`
	AnchorZ    uint32    `gorm:"column:anchor_z"`
	Level      uint8     `gorm:"column:level"`
	OwnerRank  int       `gorm:"column:owner_rank"`
	PointCount int       `gorm:"column:point_count"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for LeafRecord.
func (LeafRecord) TableName() string {
	return "octree_leaves"
}

// PointRecord is the row shape for one point belonging to one leaf.
// GlobalIdx is stored as-is; UnpackGlobalIdx recovers the origin rank
// and rank-local index from it at read time, same as in memory.
type PointRecord struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	TreeID    string  `gorm:"column:tree_id;type:varchar(64);index"`
	LeafID    int64   `gorm:"column:leaf_id;index"`
	X         float64 `gorm:"column:x"`
	Y         float64 `gorm:"column:y"`
	Z         float64 `gorm:"column:z"`
	GlobalIdx uint64  `gorm:"column:global_idx"`
}

// TableName returns the table name for PointRecord.
func (PointRecord) TableName() string {
	return "octree_points"
}

// TreeRecord is the parent row identifying one construction run: the
// domain it was built over and whether it was 2:1 balanced.
type TreeRecord struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	OriginX   float64   `gorm:"column:origin_x"`
	OriginY   float64   `gorm:"column:origin_y"`
	OriginZ   float64   `gorm:"column:origin_z"`
	DiameterX float64   `gorm:"column:diameter_x"`
	DiameterY float64   `gorm:"column:diameter_y"`
	DiameterZ float64   `gorm:"column:diameter_z"`
	Balanced  bool      `gorm:"column:balanced"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for TreeRecord.
func (TreeRecord) TableName() string {
	return "octree_trees"
}
