// Package netcomm implements comm.Communicator over a gRPC coordinator
// process, for ranks that are independent OS processes rather than
// goroutines sharing an address space (pkg/comm/local). The rendezvous
// shape — each rank blocks on a collective until every member of its
// group has contributed, then everyone is released with their share of
// the combined result — mirrors pkg/comm/local's world/round exactly;
// only the transport (gRPC unary calls instead of a shared channel)
// and the group key (a string commID instead of a *world pointer)
// differ.
package netcomm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

// group is the rendezvous state for one commID: one contribution slot
// per rank, resolved once every rank has arrived for the in-flight
// round.
type group struct {
	mu      sync.Mutex
	current *pendingRound
}

type pendingRound struct {
	size    int
	arrived int
	inbox   []request
	out     []response
	ready   chan struct{}
}

// Coordinator is the gRPC service every netcomm rank dials into. One
// Coordinator can host arbitrarily many independent communicator
// groups, distinguished by commID; Split spawns a new group under a
// derived commID without opening a new network endpoint.
type Coordinator struct {
	mu     sync.Mutex
	groups map[string]*group
}

// NewCoordinator creates an empty Coordinator ready to be registered
// with a *grpc.Server via RegisterCoordinatorServer.
func NewCoordinator() *Coordinator {
	return &Coordinator{groups: make(map[string]*group)}
}

func (co *Coordinator) groupFor(commID string) *group {
	co.mu.Lock()
	defer co.mu.Unlock()
	g, ok := co.groups[commID]
	if !ok {
		g = &group{}
		co.groups[commID] = g
	}
	return g
}

// Collective implements coordinatorServer: decode the envelope, join
// the named group's in-flight round, block until the round completes,
// and return this rank's share of the result.
func (co *Coordinator) Collective(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	req, err := decodeRequest(in.GetValue())
	if err != nil {
		return nil, fmt.Errorf("netcomm: decode request: %w", err)
	}

	g := co.groupFor(req.CommID)
	g.mu.Lock()
	r := g.current
	if r == nil {
		r = &pendingRound{size: req.Size, inbox: make([]request, req.Size), ready: make(chan struct{})}
		g.current = r
	}
	r.inbox[req.Rank] = req
	r.arrived++
	if r.arrived == r.size {
		r.out = combine(r.inbox)
		g.current = nil
		g.mu.Unlock()
		close(r.ready)
	} else {
		g.mu.Unlock()
		<-r.ready
	}

	data, err := encodeResponse(r.out[req.Rank])
	if err != nil {
		return nil, fmt.Errorf("netcomm: encode response: %w", err)
	}
	return wrapperspb.Bytes(data), nil
}

// combine computes every rank's share of the collective result from
// the full set of arrived requests, ordered by rank. Exactly one
// op is populated per round, since every member of a group issues the
// same collective call in lockstep.
func combine(inbox []request) []response {
	switch inbox[0].Op {
	case opBarrier:
		return make([]response, len(inbox))
	case opAllReduceU64:
		return combineAllReduceU64(inbox)
	case opAllReduceF64Slc:
		return combineAllReduceF64Slice(inbox)
	case opAllGatherKeys:
		return combineAllGatherKeys(inbox)
	case opAllGatherU64:
		return combineAllGatherU64(inbox)
	case opAllToAllKeys:
		return combineAllToAllKeys(inbox)
	case opAllToAllPayloads:
		return combineAllToAllPayloads(inbox)
	case opSplit:
		return combineSplit(inbox)
	default:
		out := make([]response, len(inbox))
		for i := range out {
			out[i] = response{Err: fmt.Sprintf("netcomm: unknown op %q", inbox[0].Op)}
		}
		return out
	}
}

func combineAllReduceU64(inbox []request) []response {
	op := inbox[0].ReduceOp
	acc := inbox[0].U64
	for _, r := range inbox[1:] {
		acc = reduceU64(acc, r.U64, op)
	}
	out := make([]response, len(inbox))
	for i := range out {
		out[i] = response{U64: acc}
	}
	return out
}

func reduceU64(a, b uint64, op comm.ReduceOp) uint64 {
	if op == comm.MinOp {
		if b < a {
			return b
		}
		return a
	}
	if b > a {
		return b
	}
	return a
}

func combineAllReduceF64Slice(inbox []request) []response {
	op := inbox[0].ReduceOp
	n := len(inbox[0].F64Slice)
	acc := append([]float64(nil), inbox[0].F64Slice...)
	for _, r := range inbox[1:] {
		for i := 0; i < n; i++ {
			acc[i] = reduceF64(acc[i], r.F64Slice[i], op)
		}
	}
	out := make([]response, len(inbox))
	for i := range out {
		out[i] = response{F64Slice: append([]float64(nil), acc...)}
	}
	return out
}

func reduceF64(a, b float64, op comm.ReduceOp) float64 {
	if op == comm.MinOp {
		if b < a {
			return b
		}
		return a
	}
	if b > a {
		return b
	}
	return a
}

func combineAllGatherKeys(inbox []request) []response {
	gathered := make([][]morton.Key, len(inbox))
	for i, r := range inbox {
		gathered[i] = r.Keys
	}
	out := make([]response, len(inbox))
	for i := range out {
		out[i] = response{KeysAll: gathered}
	}
	return out
}

func combineAllGatherU64(inbox []request) []response {
	gathered := make([]uint64, len(inbox))
	for i, r := range inbox {
		gathered[i] = r.U64
	}
	out := make([]response, len(inbox))
	for i := range out {
		out[i] = response{U64Gathered: gathered}
	}
	return out
}

func combineAllToAllKeys(inbox []request) []response {
	out := make([]response, len(inbox))
	for dest := range inbox {
		var recv []morton.Key
		for src := range inbox {
			recv = append(recv, inbox[src].KeyBuckets[dest]...)
		}
		out[dest] = response{Keys: recv}
	}
	return out
}

func combineAllToAllPayloads(inbox []request) []response {
	out := make([]response, len(inbox))
	for dest := range inbox {
		var recv []comm.Payload
		for src := range inbox {
			recv = append(recv, inbox[src].PayloadBuckets[dest]...)
		}
		out[dest] = response{Payloads: recv}
	}
	return out
}

func combineSplit(inbox []request) []response {
	type member struct {
		rank, key int
	}
	groups := make(map[int][]member)
	for rank, r := range inbox {
		groups[r.SplitColor] = append(groups[r.SplitColor], member{rank: rank, key: r.SplitKey})
	}

	out := make([]response, len(inbox))
	for color, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			if members[i].key != members[j].key {
				return members[i].key < members[j].key
			}
			return members[i].rank < members[j].rank
		})
		newCommID := fmt.Sprintf("%s/c%d", inbox[0].CommID, color)
		for newRank, m := range members {
			out[m.rank] = response{NewCommID: newCommID, NewRank: newRank, NewSize: len(members)}
		}
	}
	return out
}
