package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/distoctree/distoctree/pkg/morton"
	"github.com/distoctree/distoctree/pkg/octree"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// onConflictUpdateDomain makes SaveTree's TreeRecord insert an upsert:
// re-saving the same treeID (e.g. a rank retrying after a transient
// connection error) refreshes the domain/balanced columns instead of
// failing on the primary key.
func onConflictUpdateDomain() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"origin_x", "origin_y", "origin_z", "diameter_x", "diameter_y", "diameter_z", "balanced"}),
	}
}

// Store persists constructed trees through GORM: one struct wrapping
// a *gorm.DB, one method per operation, errors wrapped with the
// failing query's context.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an already-open GORM connection. Callers typically
// build db with NewGormDB and call AutoMigrate once before use.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveTree persists this rank's view of treeID: the domain and
// balanced flag (idempotently upserted), and this rank's leaves and
// points (appended fresh, since a rank's leaf set is only known after
// construction completes on that rank).
func (s *Store) SaveTree(ctx context.Context, treeID string, rank int, tree *octree.DistributedTree) error {
	record := TreeRecord{
		ID:        treeID,
		OriginX:   tree.Domain.Origin[0],
		OriginY:   tree.Domain.Origin[1],
		OriginZ:   tree.Domain.Origin[2],
		DiameterX: tree.Domain.Diameter[0],
		DiameterY: tree.Domain.Diameter[1],
		DiameterZ: tree.Domain.Diameter[2],
		Balanced:  tree.Balanced,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(onConflictUpdateDomain()).Create(&record).Error; err != nil {
			return fmt.Errorf("upsert tree record: %w", err)
		}

		for _, leaf := range tree.Leaves {
			leafRecord := LeafRecord{
				TreeID:     treeID,
				AnchorX:    leaf.Key.Anchor[0],
				AnchorY:    leaf.Key.Anchor[1],
				AnchorZ:    leaf.Key.Anchor[2],
				Level:      leaf.Key.Level,
				OwnerRank:  rank,
				PointCount: len(leaf.Points),
			}
			if err := tx.Create(&leafRecord).Error; err != nil {
				return fmt.Errorf("insert leaf record: %w", err)
			}

			if len(leaf.Points) == 0 {
				continue
			}
			pointRecords := make([]PointRecord, len(leaf.Points))
			for i, p := range leaf.Points {
				pointRecords[i] = PointRecord{
					TreeID:    treeID,
					LeafID:    leafRecord.ID,
					X:         p.X,
					Y:         p.Y,
					Z:         p.Z,
					GlobalIdx: p.GlobalIdx,
				}
			}
			if err := tx.CreateInBatches(pointRecords, 500).Error; err != nil {
				return fmt.Errorf("insert point records: %w", err)
			}
		}

		return nil
	})
}

// LoadedLeaf is a leaf as read back from the store: its key and the
// points recorded against it, independent of which rank originally
// produced it.
type LoadedLeaf struct {
	Key       morton.Key
	OwnerRank int
	Points    []octree.Point
}

// LoadLeaves reads back every leaf recorded for treeID, in Morton
// order, with its points attached. Returns a wrapped gorm.ErrRecordNotFound
// if treeID has no TreeRecord.
func (s *Store) LoadLeaves(ctx context.Context, treeID string) ([]LoadedLeaf, error) {
	var tree TreeRecord
	if err := s.db.WithContext(ctx).First(&tree, "id = ?", treeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tree %q: %w", treeID, err)
		}
		return nil, fmt.Errorf("load tree record: %w", err)
	}

	var leafRows []LeafRecord
	if err := s.db.WithContext(ctx).
		Where("tree_id = ?", treeID).
		Order("level, anchor_x, anchor_y, anchor_z").
		Find(&leafRows).Error; err != nil {
		return nil, fmt.Errorf("load leaf records: %w", err)
	}

	leaves := make([]LoadedLeaf, len(leafRows))
	for i, row := range leafRows {
		leaves[i] = LoadedLeaf{
			Key:       morton.New([3]uint32{row.AnchorX, row.AnchorY, row.AnchorZ}, row.Level),
			OwnerRank: row.OwnerRank,
		}

		if row.PointCount == 0 {
			continue
		}
		var pointRows []PointRecord
		if err := s.db.WithContext(ctx).Where("leaf_id = ?", row.ID).Find(&pointRows).Error; err != nil {
			return nil, fmt.Errorf("load point records for leaf %d: %w", row.ID, err)
		}
		points := make([]octree.Point, len(pointRows))
		for j, p := range pointRows {
			points[j] = octree.Point{
				Key:       leaves[i].Key,
				X:         p.X,
				Y:         p.Y,
				Z:         p.Z,
				GlobalIdx: p.GlobalIdx,
			}
		}
		leaves[i].Points = points
	}

	return leaves, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
