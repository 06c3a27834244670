package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/distoctree/distoctree/pkg/config"
	"github.com/distoctree/distoctree/pkg/octree"
)

// SnapshotStore uploads serialized tree snapshots to a Tencent COS
// bucket — the object-storage counterpart of the relational Store for
// deployments that archive construction results rather than query
// them. One object is written per (tree, rank), since each rank only
// ever sees its own leaf range.
type SnapshotStore struct {
	client *cos.Client
	bucket string
	region string
	domain string
	scheme string
}

// NewSnapshotStore builds a SnapshotStore from cfg. Bucket, region,
// and both credentials are required.
func NewSnapshotStore(cfg config.COSConfig) (*SnapshotStore, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS snapshots")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS snapshots")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &SnapshotStore{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		domain: domain,
		scheme: scheme,
	}, nil
}

// snapshotKey names the object holding one rank's share of a tree.
func snapshotKey(treeID string, rank int) string {
	return path.Join("trees", treeID, fmt.Sprintf("rank-%d.gob", rank))
}

// snapshot is the on-wire shape of one rank's tree share.
type snapshot struct {
	Rank     int
	Balanced bool
	Origin   [3]float64
	Diameter [3]float64
	Leaves   []octree.LeafNode
}

// SaveTree uploads this rank's view of treeID.
func (s *SnapshotStore) SaveTree(ctx context.Context, treeID string, rank int, tree *octree.DistributedTree) error {
	data, err := encodeSnapshot(snapshot{
		Rank:     rank,
		Balanced: tree.Balanced,
		Origin:   tree.Domain.Origin,
		Diameter: tree.Domain.Diameter,
		Leaves:   tree.Leaves,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := s.client.Object.Put(ctx, snapshotKey(treeID, rank), bytes.NewReader(data), nil); err != nil {
		return fmt.Errorf("failed to upload snapshot to COS: %w", err)
	}
	return nil
}

// LoadLeaves downloads and decodes one rank's share of treeID.
func (s *SnapshotStore) LoadLeaves(ctx context.Context, treeID string, rank int) ([]octree.LeafNode, error) {
	resp, err := s.client.Object.Get(ctx, snapshotKey(treeID, rank), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot from COS: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap.Leaves, nil
}

// GetURL returns the object URL for one rank's snapshot of treeID.
func (s *SnapshotStore) GetURL(treeID string, rank int) string {
	return fmt.Sprintf("%s://%s.cos.%s.%s/%s", s.scheme, s.bucket, s.region, s.domain, snapshotKey(treeID, rank))
}

func encodeSnapshot(snap snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var snap snapshot
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap)
	return snap, err
}
