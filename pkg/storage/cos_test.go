package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distoctree/distoctree/pkg/config"
)

func TestNewSnapshotStoreValidation(t *testing.T) {
	t.Run("MissingBucket", func(t *testing.T) {
		store, err := NewSnapshotStore(config.COSConfig{
			Region:    "ap-guangzhou",
			SecretID:  "test-id",
			SecretKey: "test-key",
		})
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "bucket and region are required")
	})

	t.Run("MissingRegion", func(t *testing.T) {
		store, err := NewSnapshotStore(config.COSConfig{
			Bucket:    "test-bucket",
			SecretID:  "test-id",
			SecretKey: "test-key",
		})
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		store, err := NewSnapshotStore(config.COSConfig{
			Bucket: "test-bucket",
			Region: "ap-guangzhou",
		})
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "credentials are required")
	})

	t.Run("ValidConfig", func(t *testing.T) {
		store, err := NewSnapshotStore(config.COSConfig{
			Bucket:    "test-bucket",
			Region:    "ap-guangzhou",
			SecretID:  "test-id",
			SecretKey: "test-key",
		})
		assert.NoError(t, err)
		assert.NotNil(t, store)
	})
}

func TestSnapshotStoreGetURL(t *testing.T) {
	store, err := NewSnapshotStore(config.COSConfig{
		Bucket:    "my-bucket",
		Region:    "ap-guangzhou",
		SecretID:  "test-id",
		SecretKey: "test-key",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"https://my-bucket.cos.ap-guangzhou.myqcloud.com/trees/tree-1/rank-2.gob",
		store.GetURL("tree-1", 2))
}

func TestSnapshotCodecRoundTrip(t *testing.T) {
	tree := sampleTree(true)

	data, err := encodeSnapshot(snapshot{
		Rank:     1,
		Balanced: tree.Balanced,
		Origin:   tree.Domain.Origin,
		Diameter: tree.Domain.Diameter,
		Leaves:   tree.Leaves,
	})
	require.NoError(t, err)

	snap, err := decodeSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Rank)
	assert.True(t, snap.Balanced)
	assert.Equal(t, tree.Domain.Origin, snap.Origin)
	require.Len(t, snap.Leaves, len(tree.Leaves))
	assert.True(t, snap.Leaves[0].Key.Equal(tree.Leaves[0].Key))
	assert.Len(t, snap.Leaves[0].Points, len(tree.Leaves[0].Points))
}
