// Package local emulates an SPMD communicator world inside a single OS
// process: every rank is a goroutine, and every collective is a
// combining rendezvous rather than network I/O. It plays the same role
// for the construction pipeline that an in-memory mock plays for a
// service's external dependencies — it lets every testable property in
// the pipeline run as a plain, deterministic unit test.
package local

import (
	"sort"
	"sync"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/morton"
)

// world is the rendezvous state shared by every rank of one
// communicator group. A fresh world is created by New and by each
// distinct color produced by Split.
type world struct {
	mu      sync.Mutex
	current *round
}

// round holds the in-flight state for a single collective call: one
// contribution slot per rank, resolved once every rank has arrived.
type round struct {
	size    int
	arrived int
	inbox   []any
	out     []any
	ready   chan struct{}
}

// Communicator is the goroutine-backed Communicator implementation.
type Communicator struct {
	w    *world
	rank int
	size int
}

// New builds a world of size ranks and returns the Communicator handle
// for each rank, index i corresponding to rank i. Callers run each
// element's goroutine independently; Rank()/Size() are then fixed for
// that goroutine's lifetime.
func New(size int) []*Communicator {
	if size <= 0 {
		panic("local: communicator size must be positive")
	}
	w := &world{}
	comms := make([]*Communicator, size)
	for i := range comms {
		comms[i] = &Communicator{w: w, rank: i, size: size}
	}
	return comms
}

func (c *Communicator) Rank() int { return c.rank }
func (c *Communicator) Size() int { return c.size }

// collective is the combining-barrier primitive every other method is
// built on: each rank deposits payload and blocks until all c.size
// ranks have arrived, at which point the last arrival runs combine
// once over the full inbox (ordered by rank) and every rank reads back
// its own entry of the result.
func (c *Communicator) collective(payload any, combine func(inbox []any) []any) any {
	w := c.w
	w.mu.Lock()
	r := w.current
	if r == nil {
		r = &round{size: c.size, inbox: make([]any, c.size), ready: make(chan struct{})}
		w.current = r
	}
	r.inbox[c.rank] = payload
	r.arrived++
	if r.arrived == r.size {
		r.out = combine(r.inbox)
		w.current = nil
		w.mu.Unlock()
		close(r.ready)
	} else {
		w.mu.Unlock()
		<-r.ready
	}
	return r.out[c.rank]
}

func (c *Communicator) Barrier() {
	c.collective(nil, func(inbox []any) []any {
		return make([]any, len(inbox))
	})
}

func (c *Communicator) AllReduceUint64(local uint64, op comm.ReduceOp) uint64 {
	out := c.collective(local, func(inbox []any) []any {
		acc := inbox[0].(uint64)
		for _, v := range inbox[1:] {
			acc = reduceUint64(acc, v.(uint64), op)
		}
		result := make([]any, len(inbox))
		for i := range result {
			result[i] = acc
		}
		return result
	})
	return out.(uint64)
}

func reduceUint64(a, b uint64, op comm.ReduceOp) uint64 {
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

func (c *Communicator) AllReduceFloat64Slice(local []float64, op comm.ReduceOp) []float64 {
	out := c.collective(append([]float64(nil), local...), func(inbox []any) []any {
		n := len(inbox[0].([]float64))
		acc := append([]float64(nil), inbox[0].([]float64)...)
		for _, v := range inbox[1:] {
			s := v.([]float64)
			for i := 0; i < n; i++ {
				acc[i] = reduceFloat64(acc[i], s[i], op)
			}
		}
		result := make([]any, len(inbox))
		for i := range result {
			result[i] = append([]float64(nil), acc...)
		}
		return result
	})
	return out.([]float64)
}

func reduceFloat64(a, b float64, op comm.ReduceOp) float64 {
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

func (c *Communicator) AllGatherKeys(local []morton.Key) [][]morton.Key {
	out := c.collective(append([]morton.Key(nil), local...), func(inbox []any) []any {
		gathered := make([][]morton.Key, len(inbox))
		for i, v := range inbox {
			gathered[i] = v.([]morton.Key)
		}
		result := make([]any, len(inbox))
		for i := range result {
			result[i] = gathered
		}
		return result
	})
	return out.([][]morton.Key)
}

func (c *Communicator) AllGatherUint64(local uint64) []uint64 {
	out := c.collective(local, func(inbox []any) []any {
		gathered := make([]uint64, len(inbox))
		for i, v := range inbox {
			gathered[i] = v.(uint64)
		}
		result := make([]any, len(inbox))
		for i := range result {
			result[i] = gathered
		}
		return result
	})
	return out.([]uint64)
}

func (c *Communicator) AllToAllKeys(buckets [][]morton.Key) []morton.Key {
	if len(buckets) != c.size {
		panic("local: AllToAllKeys bucket count must equal communicator size")
	}
	out := c.collective(buckets, func(inbox []any) []any {
		result := make([]any, len(inbox))
		for dest := 0; dest < len(inbox); dest++ {
			var recv []morton.Key
			for src := 0; src < len(inbox); src++ {
				recv = append(recv, inbox[src].([][]morton.Key)[dest]...)
			}
			result[dest] = recv
		}
		return result
	})
	return out.([]morton.Key)
}

func (c *Communicator) AllToAllPayloads(buckets [][]comm.Payload) []comm.Payload {
	if len(buckets) != c.size {
		panic("local: AllToAllPayloads bucket count must equal communicator size")
	}
	out := c.collective(buckets, func(inbox []any) []any {
		result := make([]any, len(inbox))
		for dest := 0; dest < len(inbox); dest++ {
			var recv []comm.Payload
			for src := 0; src < len(inbox); src++ {
				recv = append(recv, inbox[src].([][]comm.Payload)[dest]...)
			}
			result[dest] = recv
		}
		return result
	})
	return out.([]comm.Payload)
}

type splitRequest struct {
	color, key int
}

type splitResult struct {
	w       *world
	newRank int
	newSize int
}

func (c *Communicator) Split(color, key int) comm.Communicator {
	out := c.collective(splitRequest{color: color, key: key}, func(inbox []any) []any {
		type member struct {
			rank, key int
		}
		groups := make(map[int][]member)
		for rank, v := range inbox {
			req := v.(splitRequest)
			groups[req.color] = append(groups[req.color], member{rank: rank, key: req.key})
		}
		result := make([]any, len(inbox))
		for _, members := range groups {
			sort.Slice(members, func(i, j int) bool {
				if members[i].key != members[j].key {
					return members[i].key < members[j].key
				}
				return members[i].rank < members[j].rank
			})
			gw := &world{}
			for newRank, m := range members {
				result[m.rank] = splitResult{w: gw, newRank: newRank, newSize: len(members)}
			}
		}
		return result
	})
	res := out.(splitResult)
	return &Communicator{w: res.w, rank: res.newRank, size: res.newSize}
}
