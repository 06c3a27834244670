package netcomm

import (
	"bytes"
	"encoding/gob"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

// op names the collective a request envelope carries. The coordinator
// dispatches on this field instead of a distinct RPC method per
// collective, since every collective shares the same join/combine/
// release rendezvous shape.
type op string

const (
	opBarrier          op = "barrier"
	opAllReduceU64     op = "allreduce_u64"
	opAllReduceF64Slc  op = "allreduce_f64_slice"
	opAllGatherKeys    op = "allgather_keys"
	opAllGatherU64     op = "allgather_u64"
	opAllToAllKeys     op = "alltoall_keys"
	opAllToAllPayloads op = "alltoall_payloads"
	opSplit            op = "split"
)

// request is what a rank sends the coordinator for one collective
// call: which group and rank it is, which operation, and that
// operation's argument in the one field relevant to it.
type request struct {
	CommID string
	Rank   int
	Size   int
	Op     op

	ReduceOp       comm.ReduceOp
	U64            uint64
	F64Slice       []float64
	Keys           []morton.Key
	KeyBuckets     [][]morton.Key
	PayloadBuckets [][]comm.Payload

	SplitColor int
	SplitKey   int
}

// response is what the coordinator sends back: this rank's share of
// the collective's result.
type response struct {
	U64         uint64
	U64Gathered []uint64
	F64Slice    []float64
	KeysAll     [][]morton.Key
	Keys        []morton.Key
	Payloads    []comm.Payload

	NewCommID string
	NewRank   int
	NewSize   int

	Err string
}

func encodeRequest(r request) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRequest(data []byte) (request, error) {
	var r request
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}

func encodeResponse(r response) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeResponse(data []byte) (response, error) {
	var r response
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}
