package kdtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func bruteForce(points []r3.Vector, q r3.Vector) []Neighbor {
	out := make([]Neighbor, len(points))
	for i, p := range points {
		out[i] = Neighbor{Index: i, DistSq: q.Sub(p).Norm2()}
	}
	SortNeighbors(out)
	return out
}

func randomPoints(rng *rand.Rand, n int) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: rng.Float64()*10 - 5, Y: rng.Float64() * 3, Z: rng.NormFloat64()}
	}
	return pts
}

func TestKNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pts := randomPoints(rng, 2000)
	tree := New(pts, nil)
	test.That(t, tree.Len(), test.ShouldEqual, 2000)

	for trial := 0; trial < 200; trial++ {
		q := r3.Vector{X: rng.Float64()*12 - 6, Y: rng.Float64()*4 - 0.5, Z: rng.NormFloat64()}
		k := 1 + rng.Intn(30)
		got := tree.KNearest(q, k)
		want := bruteForce(pts, q)[:k]
		test.That(t, got, test.ShouldResemble, want)
	}
}

func TestKNearestGridTies(t *testing.T) {
	// integer lattice points produce many equal distances
	var pts []r3.Vector
	for x := 0; x < 12; x++ {
		for y := 0; y < 12; y++ {
			pts = append(pts, r3.Vector{X: float64(x), Y: float64(y)})
		}
	}
	tree := New(pts, nil)
	for _, q := range []r3.Vector{{X: 5, Y: 5}, {X: 0, Y: 0}, {X: 5.5, Y: 5.5}, {X: 11, Y: 3}} {
		for _, k := range []int{1, 4, 5, 9, 13} {
			test.That(t, tree.KNearest(q, k), test.ShouldResemble, bruteForce(pts, q)[:k])
		}
	}
}

func TestRadiusMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pts := randomPoints(rng, 1000)
	tree := New(pts, nil)

	for trial := 0; trial < 100; trial++ {
		q := pts[rng.Intn(len(pts))]
		r := rng.Float64() * 1.5
		got := tree.Radius(q, r)
		SortNeighbors(got)

		var want []Neighbor
		for _, n := range bruteForce(pts, q) {
			if n.DistSq <= r*r {
				want = append(want, n)
			}
		}
		test.That(t, len(got), test.ShouldEqual, len(want))
		if len(want) > 0 {
			test.That(t, got, test.ShouldResemble, want)
		}
	}
}

func TestCustomIDs(t *testing.T) {
	pts := []r3.Vector{{X: 0}, {X: 1}, {X: 2}}
	tree := New(pts, []int{10, 20, 30})
	got := tree.KNearest(r3.Vector{X: 1.9}, 2)
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[0].Index, test.ShouldEqual, 30)
	test.That(t, got[1].Index, test.ShouldEqual, 20)

	// the tree does not observe changes to the source slice
	pts[2] = r3.Vector{X: 100}
	test.That(t, tree.KNearest(r3.Vector{X: 1.9}, 1)[0].Index, test.ShouldEqual, 30)
}

func TestDegenerateTrees(t *testing.T) {
	empty := New(nil, nil)
	test.That(t, empty.KNearest(r3.Vector{}, 3), test.ShouldBeEmpty)
	test.That(t, empty.Radius(r3.Vector{}, 3), test.ShouldBeEmpty)

	single := New([]r3.Vector{{X: 1, Y: 1, Z: 1}}, nil)
	got := single.KNearest(r3.Vector{}, 5)
	test.That(t, got, test.ShouldHaveLength, 1)
	test.That(t, got[0].DistSq, test.ShouldAlmostEqual, 3)

	// many duplicates must terminate and return every copy
	dups := make([]r3.Vector, 500)
	for i := range dups {
		dups[i] = r3.Vector{X: 2, Y: 2, Z: 2}
	}
	dups = append(dups, r3.Vector{X: 3, Y: 2, Z: 2})
	tree := New(dups, nil)
	got = tree.KNearest(r3.Vector{X: 2, Y: 2, Z: 2}, 20)
	test.That(t, got, test.ShouldHaveLength, 20)
	for i, n := range got {
		test.That(t, n.Index, test.ShouldEqual, i)
		test.That(t, n.DistSq, test.ShouldEqual, 0.)
	}
	test.That(t, tree.Radius(r3.Vector{X: 2, Y: 2, Z: 2}, 0), test.ShouldHaveLength, 500)
	test.That(t, tree.KNearest(r3.Vector{X: 2, Y: 2, Z: 2}, 0), test.ShouldBeEmpty)
}

func TestSortNeighbors(t *testing.T) {
	ns := []Neighbor{{Index: 3, DistSq: 1}, {Index: 1, DistSq: 1}, {Index: 7, DistSq: 0.5}}
	SortNeighbors(ns)
	test.That(t, sort.SliceIsSorted(ns, func(i, j int) bool { return less(ns[i], ns[j]) }), test.ShouldBeTrue)
	test.That(t, ns[0].Index, test.ShouldEqual, 7)
	test.That(t, ns[1].Index, test.ShouldEqual, 1)
}
