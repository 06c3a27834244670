package netcomm

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

// Communicator is the rank-side comm.Communicator backed by a
// coordinator. A collective that fails at the transport layer panics:
// the construction pipeline runs inside one collective region, and a
// rank that cannot reach the coordinator mid-region has already
// deadlocked every peer — there is no state to unwind to.
type Communicator struct {
	client *coordinatorClient
	conn   *grpc.ClientConn
	commID string
	rank   int
	size   int
}

// Dial joins the communicator group commID on the coordinator at
// target as rank of size. Every member of the group must dial with the
// same commID and size and a distinct rank in [0, size). Without
// explicit dial options the connection is plaintext, the usual shape
// for a rank fleet sharing a private network.
func Dial(target, commID string, rank, size int, opts ...grpc.DialOption) (*Communicator, error) {
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("netcomm: rank %d out of range [0, %d)", rank, size)
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("netcomm: dial %s: %w", target, err)
	}
	c := NewCommunicator(conn, commID, rank, size)
	c.conn = conn
	return c, nil
}

// NewCommunicator wraps an existing connection (or an in-memory one in
// tests) as rank of the group commID. Close is a no-op for
// communicators built this way; the caller owns the connection.
func NewCommunicator(cc grpc.ClientConnInterface, commID string, rank, size int) *Communicator {
	return &Communicator{
		client: newCoordinatorClient(cc),
		commID: commID,
		rank:   rank,
		size:   size,
	}
}

// Close tears down the connection a Dial created. Communicators
// derived by Split share the parent's connection and must not be
// closed individually.
func (c *Communicator) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Communicator) Rank() int { return c.rank }
func (c *Communicator) Size() int { return c.size }

// call runs one collective round against the coordinator, blocking
// until every member of the group has contributed.
func (c *Communicator) call(req request) response {
	req.CommID = c.commID
	req.Rank = c.rank
	req.Size = c.size

	data, err := encodeRequest(req)
	if err != nil {
		panic(fmt.Sprintf("netcomm: encode %s: %v", req.Op, err))
	}
	out, err := c.client.Collective(context.Background(), wrapperspb.Bytes(data))
	if err != nil {
		panic(fmt.Sprintf("netcomm: collective %s failed: %v", req.Op, err))
	}
	resp, err := decodeResponse(out.GetValue())
	if err != nil {
		panic(fmt.Sprintf("netcomm: decode %s: %v", req.Op, err))
	}
	if resp.Err != "" {
		panic(resp.Err)
	}
	return resp
}

func (c *Communicator) AllReduceUint64(local uint64, op comm.ReduceOp) uint64 {
	return c.call(request{Op: opAllReduceU64, U64: local, ReduceOp: op}).U64
}

func (c *Communicator) AllReduceFloat64Slice(local []float64, op comm.ReduceOp) []float64 {
	return c.call(request{Op: opAllReduceF64Slc, F64Slice: local, ReduceOp: op}).F64Slice
}

func (c *Communicator) AllGatherKeys(local []morton.Key) [][]morton.Key {
	return c.call(request{Op: opAllGatherKeys, Keys: local}).KeysAll
}

func (c *Communicator) AllGatherUint64(local uint64) []uint64 {
	return c.call(request{Op: opAllGatherU64, U64: local}).U64Gathered
}

func (c *Communicator) AllToAllKeys(buckets [][]morton.Key) []morton.Key {
	return c.call(request{Op: opAllToAllKeys, KeyBuckets: buckets}).Keys
}

func (c *Communicator) AllToAllPayloads(buckets [][]comm.Payload) []comm.Payload {
	return c.call(request{Op: opAllToAllPayloads, PayloadBuckets: buckets}).Payloads
}

// Split forms one sub-group per color, renumbered by key (ties broken
// by parent rank). The child reuses the parent's connection under the
// coordinator-assigned derived commID, so no new endpoint is opened.
func (c *Communicator) Split(color, key int) comm.Communicator {
	resp := c.call(request{Op: opSplit, SplitColor: color, SplitKey: key})
	return &Communicator{
		client: c.client,
		commID: resp.NewCommID,
		rank:   resp.NewRank,
		size:   resp.NewSize,
	}
}

func (c *Communicator) Barrier() {
	c.call(request{Op: opBarrier})
}
