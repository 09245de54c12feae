// Package kdtree implements a static k-d tree over 3D points supporting
// k-nearest-neighbor and radius queries.
//
// Nodes live in a flat arena and refer to their children by position, and the
// points are reordered so that every node owns a contiguous range of them. The
// tree is a snapshot: later changes to the source points are not observed.
package kdtree

import (
	"math"

	"github.com/golang/geo/r3"
)

// BucketSize is the maximum number of points held by a leaf, unless all of
// the points in it coincide.
const BucketSize = 10

const noChild = int32(-1)

// Neighbor is a query result: the caller supplied index of a point and its
// squared distance to the query position.
type Neighbor struct {
	Index  int
	DistSq float64
}

type node struct {
	lo, hi      int32
	left, right int32
	axis        int8
	split       float64
}

func (n *node) isLeaf() bool {
	return n.left == noChild
}

// Tree is an immutable k-d tree.
type Tree struct {
	points []r3.Vector
	ids    []int
	nodes  []node
}

// New builds a tree over points. ids[i] is reported as the Index of points[i];
// a nil ids uses the position in points. Both slices are copied.
func New(points []r3.Vector, ids []int) *Tree {
	t := &Tree{
		points: append([]r3.Vector(nil), points...),
		ids:    make([]int, len(points)),
	}
	for i := range t.ids {
		if ids != nil {
			t.ids[i] = ids[i]
		} else {
			t.ids[i] = i
		}
	}
	if len(points) > 0 {
		t.nodes = make([]node, 0, 2*len(points)/BucketSize+1)
		t.build(0, int32(len(points)))
	}
	return t
}

// Len returns the number of points in the tree.
func (t *Tree) Len() int {
	return len(t.points)
}

func (t *Tree) build(lo, hi int32) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{lo: lo, hi: hi, left: noChild, right: noChild})

	axis, spread := t.widestAxis(lo, hi)
	if hi-lo <= BucketSize || spread == 0 {
		return idx
	}

	mid := lo + (hi-lo)/2
	t.selectNth(int(lo), int(hi), int(mid), axis)
	split := coord(t.points[mid], axis)

	left := t.build(lo, mid)
	right := t.build(mid, hi)
	n := &t.nodes[idx]
	n.left, n.right = left, right
	n.axis = int8(axis)
	n.split = split
	return idx
}

// widestAxis returns the axis of largest bounding box extent over [lo, hi).
// Ties go to the lower axis.
func (t *Tree) widestAxis(lo, hi int32) (int, float64) {
	minV := t.points[lo]
	maxV := t.points[lo]
	for _, p := range t.points[lo+1 : hi] {
		minV = r3.Vector{X: math.Min(minV.X, p.X), Y: math.Min(minV.Y, p.Y), Z: math.Min(minV.Z, p.Z)}
		maxV = r3.Vector{X: math.Max(maxV.X, p.X), Y: math.Max(maxV.Y, p.Y), Z: math.Max(maxV.Z, p.Z)}
	}
	ext := maxV.Sub(minV)
	axis, spread := 0, ext.X
	if ext.Y > spread {
		axis, spread = 1, ext.Y
	}
	if ext.Z > spread {
		axis, spread = 2, ext.Z
	}
	return axis, spread
}

// selectNth partially orders [lo, hi) along axis so that the element at nth is
// the one a full sort would put there, smaller or equal elements before it and
// larger or equal ones after.
func (t *Tree) selectNth(lo, hi, nth, axis int) {
	for hi-lo > 1 {
		pivot := medianOfThree(
			coord(t.points[lo], axis),
			coord(t.points[lo+(hi-lo)/2], axis),
			coord(t.points[hi-1], axis),
		)
		// three-way partition: [lo,lt) < pivot, [lt,gt) == pivot, [gt,hi) > pivot
		lt, i, gt := lo, lo, hi
		for i < gt {
			c := coord(t.points[i], axis)
			switch {
			case c < pivot:
				t.swap(lt, i)
				lt++
				i++
			case c > pivot:
				gt--
				t.swap(i, gt)
			default:
				i++
			}
		}
		switch {
		case nth < lt:
			hi = lt
		case nth >= gt:
			lo = gt
		default:
			return
		}
	}
}

func (t *Tree) swap(i, j int) {
	t.points[i], t.points[j] = t.points[j], t.points[i]
	t.ids[i], t.ids[j] = t.ids[j], t.ids[i]
}

func medianOfThree(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}

func coord(p r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}
