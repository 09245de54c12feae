package kdtree

import (
	"container/heap"
	"sort"

	"github.com/golang/geo/r3"
)

// less orders neighbors by distance, then by index.
func less(a, b Neighbor) bool {
	if a.DistSq != b.DistSq {
		return a.DistSq < b.DistSq
	}
	return a.Index < b.Index
}

// SortNeighbors sorts by ascending distance, ties by ascending index.
func SortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return less(ns[i], ns[j]) })
}

// worstFirst is a max-heap of the current k best candidates.
type worstFirst []Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return less(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Neighbor)) }

func (h *worstFirst) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// KNearest returns the k points closest to q in ascending order of distance,
// ties broken by ascending index. Fewer are returned only if the tree holds
// fewer than k points.
func (t *Tree) KNearest(q r3.Vector, k int) []Neighbor {
	if k <= 0 || len(t.nodes) == 0 {
		return nil
	}
	if k > len(t.points) {
		k = len(t.points)
	}
	best := make(worstFirst, 0, k)
	t.knn(0, q, k, &best)

	out := []Neighbor(best)
	SortNeighbors(out)
	return out
}

func (t *Tree) knn(idx int32, q r3.Vector, k int, best *worstFirst) {
	n := &t.nodes[idx]
	if n.isLeaf() {
		for i := n.lo; i < n.hi; i++ {
			cand := Neighbor{Index: t.ids[i], DistSq: q.Sub(t.points[i]).Norm2()}
			switch {
			case best.Len() < k:
				heap.Push(best, cand)
			case less(cand, (*best)[0]):
				(*best)[0] = cand
				heap.Fix(best, 0)
			}
		}
		return
	}

	diff := coord(q, int(n.axis)) - n.split
	near, far := n.left, n.right
	if diff >= 0 {
		near, far = far, near
	}
	t.knn(near, q, k, best)
	// equal distances must still be visited so index ties resolve the same way
	// regardless of tree shape
	if best.Len() < k || diff*diff <= (*best)[0].DistSq {
		t.knn(far, q, k, best)
	}
}

// Radius returns every point within distance r of q, boundary included, in no
// particular order.
func (t *Tree) Radius(q r3.Vector, r float64) []Neighbor {
	if r < 0 || len(t.nodes) == 0 {
		return nil
	}
	var out []Neighbor
	t.radius(0, q, r*r, &out)
	return out
}

func (t *Tree) radius(idx int32, q r3.Vector, rSq float64, out *[]Neighbor) {
	n := &t.nodes[idx]
	if n.isLeaf() {
		for i := n.lo; i < n.hi; i++ {
			if d := q.Sub(t.points[i]).Norm2(); d <= rSq {
				*out = append(*out, Neighbor{Index: t.ids[i], DistSq: d})
			}
		}
		return
	}
	diff := coord(q, int(n.axis)) - n.split
	near, far := n.left, n.right
	if diff >= 0 {
		near, far = far, near
	}
	t.radius(near, q, rSq, out)
	if diff*diff <= rSq {
		t.radius(far, q, rSq, out)
	}
}
