package simplify

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/spatialmath"
	"go.viam.com/pointproc/utils"
)

func randomCloud(n int, size float64, seed int64) *pointcloud.PointSet {
	rng := rand.New(rand.NewSource(seed))
	ps := pointcloud.New()
	for i := 0; i < n; i++ {
		ps.Insert(r3.Vector{X: rng.Float64() * size, Y: rng.Float64() * size, Z: rng.Float64() * size})
	}
	return ps
}

func flatGrid(n int) *pointcloud.PointSet {
	ps := pointcloud.New()
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			ps.Insert(r3.Vector{X: float64(x), Y: float64(y)})
		}
	}
	return ps
}

func sphere(n int) *pointcloud.PointSet {
	return pointcloud.NewFromPositions(spatialmath.FibonacciSphere(n))
}

func TestGrid(t *testing.T) {
	for _, policy := range []GridRepresentative{FirstInCell, ClosestToCenter} {
		ps := randomCloud(2000, 10, 1)
		before := ps.Clone()

		removed, err := Grid(ps, 1.5, policy, utils.Parallel)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, removed, test.ShouldEqual, 2000-len(ps.Active()))

		occupied := map[cellKey][]int{}
		for _, i := range before.Active() {
			k, _ := cellOf(before.Position(i), 1.5)
			occupied[k] = append(occupied[k], i)
		}
		test.That(t, len(ps.Active()), test.ShouldEqual, len(occupied))

		survivors := map[cellKey]int{}
		for _, i := range ps.Active() {
			k, _ := cellOf(ps.Position(i), 1.5)
			_, dup := survivors[k]
			test.That(t, dup, test.ShouldBeFalse)
			survivors[k] = i
		}
		for k, members := range occupied {
			kept, ok := survivors[k]
			test.That(t, ok, test.ShouldBeTrue)
			if policy == FirstInCell {
				test.That(t, kept, test.ShouldEqual, members[0])
				continue
			}
			center := k.center(1.5)
			for _, m := range members {
				test.That(t,
					before.Position(kept).Sub(center).Norm2(),
					test.ShouldBeLessThanOrEqualTo,
					before.Position(m).Sub(center).Norm2())
			}
		}
	}
}

func TestGridNegativeCoordinates(t *testing.T) {
	ps := pointcloud.NewFromPositions([]r3.Vector{{X: -0.1}, {X: 0.1}, {X: -0.9}, {X: 0.9}})
	removed, err := Grid(ps, 1, FirstInCell, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 2)
	test.That(t, ps.Active(), test.ShouldResemble, []int{0, 1})
}

func TestGridErrors(t *testing.T) {
	ps := randomCloud(10, 1, 0)
	for _, eps := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Grid(ps, eps, FirstInCell, utils.Sequential)
		test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
	}
	test.That(t, ps.Active(), test.ShouldHaveLength, 10)

	removed, err := Grid(pointcloud.New(), 1, FirstInCell, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 0)

	// cell indices beyond ±2^62 would saturate and merge distinct cells
	far := pointcloud.NewFromPositions([]r3.Vector{{X: 1}, {X: 2}, {Y: 3}})
	for _, mode := range []utils.ConcurrencyMode{utils.Sequential, utils.Parallel} {
		_, err = Grid(far, 1e-300, ClosestToCenter, mode)
		test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "point 0")
	}
	test.That(t, far.Active(), test.ShouldHaveLength, 3)

	huge := pointcloud.NewFromPositions([]r3.Vector{{X: 1e19}, {X: 2e19}})
	_, err = Grid(huge, 1, FirstInCell, utils.Sequential)
	test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
	test.That(t, huge.Active(), test.ShouldHaveLength, 2)

	nearLimit := pointcloud.NewFromPositions([]r3.Vector{{X: 4e18}, {X: 4e18 + 1024}})
	removed, err = Grid(nearLimit, 1, FirstInCell, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 0)

	_, err = ParseGridRepresentative("median")
	test.That(t, err, test.ShouldNotBeNil)
	policy, err := ParseGridRepresentative("closest_to_center")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, policy, test.ShouldEqual, ClosestToCenter)
}

func TestRandom(t *testing.T) {
	ps := randomCloud(1000, 1, 2)
	removed, err := Random(ps, 0, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 0)
	test.That(t, ps.Active(), test.ShouldHaveLength, 1000)

	removed, err = Random(ps.Clone(), 100, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 1000)

	a, b := ps.Clone(), ps.Clone()
	removed, err = Random(a, 50, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldBeBetween, 400, 600)
	_, err = Random(b, 50, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Active(), test.ShouldResemble, b.Active())

	for _, pct := range []float64{-1, 100.5, math.NaN()} {
		_, err = Random(ps, pct, 7)
		test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
	}
}

func TestHierarchyFlat(t *testing.T) {
	ps := flatGrid(20)
	removed, err := Hierarchy(ps, HierarchyParams{Size: 10, VarMax: DefaultHierarchyVarMax}, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	kept := len(ps.Active())
	test.That(t, removed, test.ShouldEqual, 400-kept)
	// no terminal cluster holds more than 10 points
	test.That(t, kept, test.ShouldBeGreaterThanOrEqualTo, 40)
	test.That(t, kept, test.ShouldBeLessThan, 400)
	for _, i := range ps.Active() {
		p := ps.Position(i)
		test.That(t, p.Z, test.ShouldEqual, 0.)
		test.That(t, p.X, test.ShouldBeBetweenOrEqual, 0, 19)
		test.That(t, p.Y, test.ShouldBeBetweenOrEqual, 0, 19)
	}
}

func TestHierarchyClosestPoint(t *testing.T) {
	ps := flatGrid(20)
	_, err := Hierarchy(ps, HierarchyParams{Size: 10, VarMax: DefaultHierarchyVarMax, Representative: ClosestPoint}, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	for _, i := range ps.Active() {
		p := ps.Position(i)
		test.That(t, p.X, test.ShouldEqual, float64(i/20))
		test.That(t, p.Y, test.ShouldEqual, float64(i%20))
	}
}

func TestHierarchyVariation(t *testing.T) {
	loose := sphere(1000)
	_, err := Hierarchy(loose, HierarchyParams{Size: 10, VarMax: DefaultHierarchyVarMax}, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)

	// a lower variation threshold keeps splitting curved clusters
	tight := sphere(1000)
	_, err = Hierarchy(tight, HierarchyParams{Size: 10, VarMax: 1e-4}, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tight.Active()), test.ShouldBeGreaterThan, len(loose.Active()))
}

func TestHierarchySequentialMatchesParallel(t *testing.T) {
	a := sphere(5000)
	b := a.Clone()
	params := HierarchyParams{Size: 10, VarMax: DefaultHierarchyVarMax}
	ra, err := Hierarchy(a, params, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	rb, err := Hierarchy(b, params, utils.Parallel)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ra, test.ShouldEqual, rb)
	test.That(t, a.Active(), test.ShouldResemble, b.Active())
	for _, i := range a.Active() {
		test.That(t, a.Position(i), test.ShouldResemble, b.Position(i))
	}
}

func TestHierarchyEdgeCases(t *testing.T) {
	// coincident points collapse into one
	dups := pointcloud.NewFromPositions(make([]r3.Vector, 30))
	removed, err := Hierarchy(dups, HierarchyParams{Size: 10, VarMax: DefaultHierarchyVarMax}, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 29)

	removed, err = Hierarchy(pointcloud.New(), HierarchyParams{Size: 10, VarMax: DefaultHierarchyVarMax}, utils.Sequential)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldEqual, 0)

	for _, params := range []HierarchyParams{
		{Size: 0, VarMax: 0.3},
		{Size: 10, VarMax: -0.1},
		{Size: 10, VarMax: 2},
		{Size: 10, VarMax: 0.3, Representative: 7},
	} {
		_, err = Hierarchy(dups, params, utils.Sequential)
		test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
	}
}
