// Package neighbors answers neighborhood queries over the active points of a
// cloud, in store indices, sorted by ascending distance.
package neighbors

import (
	"github.com/golang/geo/r3"

	"go.viam.com/pointproc/kdtree"
	"go.viam.com/pointproc/pointcloud"
)

// Neighbor is an (index, squared distance) pair.
type Neighbor = kdtree.Neighbor

// Index is a snapshot of a cloud's active positions. Mutating the cloud after
// New does not affect query results.
type Index struct {
	tree      *kdtree.Tree
	positions []r3.Vector
	active    []int
}

// New snapshots the active points of cloud.
func New(cloud pointcloud.PointCloud) *Index {
	active := cloud.Active()
	pts := pointcloud.Positions(cloud, active)
	var positions []r3.Vector
	if len(active) > 0 {
		positions = make([]r3.Vector, active[len(active)-1]+1)
		for j, i := range active {
			positions[i] = pts[j]
		}
	}
	return &Index{
		tree:      kdtree.New(pts, active),
		positions: positions,
		active:    active,
	}
}

// NewFromPositions indexes points directly; point j is reported as index j.
func NewFromPositions(points []r3.Vector) *Index {
	active := make([]int, len(points))
	for i := range active {
		active[i] = i
	}
	return &Index{
		tree:      kdtree.New(points, nil),
		positions: append([]r3.Vector(nil), points...),
		active:    active,
	}
}

// Len returns the number of indexed points.
func (idx *Index) Len() int {
	return len(idx.active)
}

// Active returns the indexed store indices in ascending order. The slice must not be modified.
func (idx *Index) Active() []int {
	return idx.active
}

// Position returns the snapshot position of an indexed point.
func (idx *Index) Position(i int) r3.Vector {
	return idx.positions[i]
}

// KNearest returns the k indexed points nearest to p, ascending by distance
// with ties broken by index.
func (idx *Index) KNearest(p r3.Vector, k int) []Neighbor {
	return idx.tree.KNearest(p, k)
}

// KNearestOf returns the k nearest neighbors of indexed point i, excluding i
// itself. Fewer than k are returned only when the index holds at most k points.
func (idx *Index) KNearestOf(i, k int) []Neighbor {
	if k <= 0 {
		return nil
	}
	found := idx.tree.KNearest(idx.positions[i], k+1)
	out := found[:0]
	for _, n := range found {
		if n.Index != i {
			out = append(out, n)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Radius returns every indexed point within distance r of p, sorted.
func (idx *Index) Radius(p r3.Vector, r float64) []Neighbor {
	out := idx.tree.Radius(p, r)
	kdtree.SortNeighbors(out)
	return out
}

// RadiusOf returns every indexed point within distance r of point i, sorted,
// excluding i itself.
func (idx *Index) RadiusOf(i int, r float64) []Neighbor {
	found := idx.Radius(idx.positions[i], r)
	out := found[:0]
	for _, n := range found {
		if n.Index != i {
			out = append(out, n)
		}
	}
	return out
}

// Indices extracts the indices of a neighbor set.
func Indices(ns []Neighbor) []int {
	out := make([]int, len(ns))
	for j, n := range ns {
		out[j] = n.Index
	}
	return out
}
