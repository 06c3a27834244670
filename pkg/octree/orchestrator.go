package octree

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/distoctree/distoctree/internal/balance"
	"github.com/distoctree/distoctree/internal/blocks"
	"github.com/distoctree/distoctree/internal/redistribute"
	"github.com/distoctree/distoctree/internal/refine"
	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/domain"
	"github.com/distoctree/distoctree/pkg/errors"
	"github.com/distoctree/distoctree/pkg/hyksort"
	"github.com/distoctree/distoctree/pkg/morton"
	"github.com/distoctree/distoctree/pkg/telemetry"
	"github.com/distoctree/distoctree/pkg/utils"
)

// Config bundles the construction parameters every rank must agree on.
type Config struct {
	// NCRIT is the maximum number of points a non-deepest leaf may
	// hold before it is subdivided further.
	NCRIT int
	// HyksortK is the sample-sort fan-out; must be a power of two,
	// and the communicator size must be a power of HyksortK.
	HyksortK int
	// Balanced enables the 2:1 distributed balance pass.
	Balanced bool
	// Debug enables a consistency all-reduce before construction that
	// catches ranks disagreeing on the parameters above. Disagreement
	// is otherwise undefined behaviour (a deadlock or a corrupt tree),
	// so the check is worth one collective in debug runs.
	Debug bool
}

// DefaultConfig returns the construction parameters named in the
// system overview: NCRIT 150, hyksort K 2, unbalanced.
func DefaultConfig() Config {
	return Config{NCRIT: 150, HyksortK: 2, Balanced: false}
}

// Option adjusts rank-local build behaviour (logging); it never
// affects the constructed tree, so ranks are free to differ.
type Option func(*buildOptions)

type buildOptions struct {
	logger utils.Logger
}

// WithLogger routes this rank's stage progress and timing summary
// through logger.
func WithLogger(logger utils.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// New builds the distributed octree over coords, this rank's local
// slice of the global point cloud. Every rank must call New with the
// same cfg and the same communicator group; ranks disagreeing on
// either deadlock or corrupt the tree, since every step below is a
// collective.
func New(coords [][3]float64, cfg Config, communicator comm.Communicator, opts ...Option) (*DistributedTree, error) {
	if cfg.NCRIT <= 0 {
		return nil, errors.New(errors.CodeConfigError, "NCRIT must be positive")
	}

	o := buildOptions{logger: utils.NullLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	rank := communicator.Rank()
	log := utils.NewRankLogger(o.logger, rank)
	timer := utils.NewStageTimer("octree-build")

	ctx, buildSpan := telemetry.StartStage(context.Background(), "octree.build", rank)
	defer buildSpan.End()

	stage := func(name string) func() {
		_, span := telemetry.StartStage(ctx, "octree."+name, rank)
		stopTimer := timer.Start(name)
		log.Debug("stage %s started", name)
		return func() {
			stopTimer()
			span.End()
		}
	}

	if cfg.Debug {
		if err := assertConfigAgreement(cfg, communicator); err != nil {
			return nil, err
		}
	}

	stop := stage("domain")
	d, err := domain.FromGlobalPoints(coords, communicator)
	stop()
	if err != nil {
		return nil, err
	}

	stop = stage("encode")
	payloads := make([]comm.Payload, 0, len(coords))
	for i, c := range coords {
		key, err := d.Encode(c)
		if err != nil {
			stop()
			return nil, err
		}
		payloads = append(payloads, comm.Payload{
			Key:       key,
			X:         c[0],
			Y:         c[1],
			Z:         c[2],
			GlobalIdx: PackGlobalIdx(rank, i),
		})
	}
	stop()

	stop = stage("hyksort")
	sortedPayloads, err := hyksort.SortPayloads(payloads, cfg.HyksortK, communicator)
	stop()
	if err != nil {
		return nil, err
	}

	localKeys := make([]morton.Key, len(sortedPayloads))
	for i, p := range sortedPayloads {
		localKeys[i] = p.Key
	}

	stop = stage("blocks")
	blockKeys := blocks.Build(localKeys, communicator)
	stop()

	stop = stage("refine")
	leaves := refine.Build(blockKeys, sortedPayloads, cfg.NCRIT)
	stop()

	finalKeys := blockKeys
	if cfg.Balanced {
		stop = stage("balance")
		finalKeys = balance.Balance(leafKeysOf(leaves), communicator)
		stop()
	}

	// Redistributing against finalKeys is a no-op when it equals
	// blockKeys (the unbalanced path: points already sorted alongside
	// their keys by hyksort), and is what actually moves points when
	// balancing changed the partition.
	stop = stage("redistribute")
	movedPoints := redistribute.Points(finalKeys, flattenPoints(leaves), communicator)
	leaves = refine.Build(finalKeys, movedPoints, cfg.NCRIT)
	stop()

	sort.Slice(leaves, func(i, j int) bool { return morton.Less(leaves[i].Key, leaves[j].Key) })

	tree := &DistributedTree{Domain: d, Leaves: leaves, Balanced: cfg.Balanced}
	log.Debug("constructed %d leaves holding %d points", len(tree.Leaves), tree.PointCount())
	timer.LogSummary(log)
	return tree, nil
}

// assertConfigAgreement all-reduces a hash of the collective-invariant
// parameters; any disagreement makes min and max differ.
func assertConfigAgreement(cfg Config, communicator comm.Communicator) error {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(cfg.NCRIT))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(cfg.HyksortK))
	h.Write(buf[:])
	if cfg.Balanced {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(morton.DeepestLevel))
	h.Write(buf[:])

	sum := h.Sum64()
	lo := communicator.AllReduceUint64(sum, comm.MinOp)
	hi := communicator.AllReduceUint64(sum, comm.MaxOp)
	if lo != hi {
		return errors.New(errors.CodeCommunicatorMismatch, "ranks disagree on NCRIT, hyksort K, or the balanced flag")
	}
	return nil
}

func leafKeysOf(leaves []LeafNode) []morton.Key {
	out := make([]morton.Key, len(leaves))
	for i, l := range leaves {
		out[i] = l.Key
	}
	return out
}

func flattenPoints(leaves []LeafNode) []comm.Payload {
	var out []comm.Payload
	for _, l := range leaves {
		out = append(out, l.Points...)
	}
	return out
}
