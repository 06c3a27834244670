// Package main exposes the distributed octree to host languages over
// a flat C ABI. Build with:
//
//	go build -buildmode=c-shared -o libdistoctree.so ./cabi
//
// Handles returned to the host are opaque integers backed by
// cgo.Handle; every constructor has a matching free entry. Key and
// point buffers are C-allocated so the host may hold the pointers for
// the lifetime of the tree handle without pinning Go memory.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint64_t anchor[3];
	uint64_t morton;
} distoctree_morton_key_t;

typedef struct {
	double   coordinate[3];
	uint64_t global_idx;
	distoctree_morton_key_t key;
} distoctree_point_t;

typedef struct {
	double origin[3];
	double diameter[3];
} distoctree_domain_t;
*/
import "C"

import (
	"errors"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/distoctree/distoctree/pkg/comm"
	"github.com/distoctree/distoctree/pkg/comm/local"
	"github.com/distoctree/distoctree/pkg/morton"
	"github.com/distoctree/distoctree/pkg/octree"
)

// tree is the heap state behind a tree handle: the constructed tree
// plus the C-owned flat buffers the accessors hand out.
type tree struct {
	built     *octree.DistributedTree
	commRaw   C.uint64_t
	keysPtr   *C.distoctree_morton_key_t
	keysLen   C.uint64_t
	pointsPtr *C.distoctree_point_t
	pointsLen C.uint64_t
}

var lastError struct {
	mu  sync.Mutex
	msg *C.char
}

func setLastError(err error) {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	if lastError.msg != nil {
		C.free(unsafe.Pointer(lastError.msg))
		lastError.msg = nil
	}
	if err != nil {
		lastError.msg = C.CString(err.Error())
	}
}

//export distoctree_last_error
func distoctree_last_error() *C.char {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	return lastError.msg
}

// distoctree_comm_create_local builds an in-process world of size
// ranks and writes one communicator handle per rank into out. The
// host drives each rank from its own thread, exactly as the Go tests
// do from goroutines.
//
//export distoctree_comm_create_local
func distoctree_comm_create_local(size C.int, out *C.uint64_t) C.int {
	if size <= 0 || out == nil {
		return -1
	}
	comms := local.New(int(size))
	handles := unsafe.Slice(out, int(size))
	for i, c := range comms {
		handles[i] = C.uint64_t(cgo.NewHandle(comm.Communicator(c)))
	}
	return 0
}

//export distoctree_comm_free
func distoctree_comm_free(handle C.uint64_t) {
	cgo.Handle(handle).Delete()
}

// distoctree_tree_new constructs this rank's share of the distributed
// tree. coords points at n interleaved (x, y, z) triples. Returns 0 on
// failure; distoctree_last_error then describes why.
//
//export distoctree_tree_new
func distoctree_tree_new(commHandle C.uint64_t, coords *C.double, n C.uint64_t, balanced C.int) C.uint64_t {
	communicator, ok := cgo.Handle(commHandle).Value().(comm.Communicator)
	if !ok {
		setLastError(errors.New("distoctree: handle is not a communicator"))
		return 0
	}

	points := make([][3]float64, int(n))
	if n > 0 {
		flat := unsafe.Slice(coords, int(n)*3)
		for i := range points {
			points[i] = [3]float64{float64(flat[3*i]), float64(flat[3*i+1]), float64(flat[3*i+2])}
		}
	}

	cfg := octree.DefaultConfig()
	cfg.Balanced = balanced != 0
	built, err := octree.New(points, cfg, communicator)
	if err != nil {
		setLastError(err)
		return 0
	}

	t := &tree{built: built, commRaw: commHandle}
	fillBuffers(t)
	return C.uint64_t(cgo.NewHandle(t))
}

// fillBuffers flattens the tree's leaves and points into C-allocated
// arrays, in Morton order.
func fillBuffers(t *tree) {
	nKeys := len(t.built.Leaves)
	nPoints := t.built.PointCount()
	t.keysLen = C.uint64_t(nKeys)
	t.pointsLen = C.uint64_t(nPoints)

	if nKeys > 0 {
		t.keysPtr = (*C.distoctree_morton_key_t)(C.malloc(C.size_t(nKeys) * C.sizeof_distoctree_morton_key_t))
		keys := unsafe.Slice(t.keysPtr, nKeys)
		for i, l := range t.built.Leaves {
			keys[i] = cKey(l.Key)
		}
	}
	if nPoints > 0 {
		t.pointsPtr = (*C.distoctree_point_t)(C.malloc(C.size_t(nPoints) * C.sizeof_distoctree_point_t))
		points := unsafe.Slice(t.pointsPtr, nPoints)
		i := 0
		for _, l := range t.built.Leaves {
			for _, p := range l.Points {
				points[i] = C.distoctree_point_t{
					coordinate: [3]C.double{C.double(p.X), C.double(p.Y), C.double(p.Z)},
					global_idx: C.uint64_t(p.GlobalIdx),
					key:        cKey(p.Key),
				}
				i++
			}
		}
	}
}

func cKey(k morton.Key) C.distoctree_morton_key_t {
	return C.distoctree_morton_key_t{
		anchor: [3]C.uint64_t{C.uint64_t(k.Anchor[0]), C.uint64_t(k.Anchor[1]), C.uint64_t(k.Anchor[2])},
		morton: C.uint64_t(k.Packed()),
	}
}

func treeFromHandle(handle C.uint64_t) *tree {
	t, _ := cgo.Handle(handle).Value().(*tree)
	return t
}

//export distoctree_tree_keys_ptr
func distoctree_tree_keys_ptr(handle C.uint64_t) *C.distoctree_morton_key_t {
	return treeFromHandle(handle).keysPtr
}

//export distoctree_tree_keys_len
func distoctree_tree_keys_len(handle C.uint64_t) C.uint64_t {
	return treeFromHandle(handle).keysLen
}

//export distoctree_tree_points_ptr
func distoctree_tree_points_ptr(handle C.uint64_t) *C.distoctree_point_t {
	return treeFromHandle(handle).pointsPtr
}

//export distoctree_tree_points_len
func distoctree_tree_points_len(handle C.uint64_t) C.uint64_t {
	return treeFromHandle(handle).pointsLen
}

//export distoctree_tree_domain
func distoctree_tree_domain(handle C.uint64_t) C.distoctree_domain_t {
	d := treeFromHandle(handle).built.Domain
	return C.distoctree_domain_t{
		origin:   [3]C.double{C.double(d.Origin[0]), C.double(d.Origin[1]), C.double(d.Origin[2])},
		diameter: [3]C.double{C.double(d.Diameter[0]), C.double(d.Diameter[1]), C.double(d.Diameter[2])},
	}
}

//export distoctree_tree_balanced
func distoctree_tree_balanced(handle C.uint64_t) C.int {
	if treeFromHandle(handle).built.Balanced {
		return 1
	}
	return 0
}

//export distoctree_tree_comm_raw
func distoctree_tree_comm_raw(handle C.uint64_t) C.uint64_t {
	return treeFromHandle(handle).commRaw
}

//export distoctree_tree_free
func distoctree_tree_free(handle C.uint64_t) {
	t := treeFromHandle(handle)
	if t != nil {
		if t.keysPtr != nil {
			C.free(unsafe.Pointer(t.keysPtr))
		}
		if t.pointsPtr != nil {
			C.free(unsafe.Pointer(t.pointsPtr))
		}
	}
	cgo.Handle(handle).Delete()
}

func main() {}
