package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestCentroid(t *testing.T) {
	test.That(t, Centroid(nil), test.ShouldResemble, r3.Vector{})

	c := Centroid([]r3.Vector{{X: 1}, {Y: 2}, {Z: 3}, {X: 2, Y: 2, Z: 1}})
	test.That(t, c.X, test.ShouldAlmostEqual, 0.75)
	test.That(t, c.Y, test.ShouldAlmostEqual, 1.0)
	test.That(t, c.Z, test.ShouldAlmostEqual, 1.0)
}

func TestPlaneEigen(t *testing.T) {
	var pts []r3.Vector
	for x := 0; x < 5; x++ {
		for y := 0; y < 3; y++ {
			pts = append(pts, r3.Vector{X: float64(x), Y: float64(y), Z: 2})
		}
	}
	c := Centroid(pts)
	e, ok := SymmetricEigen(Covariance(pts, c))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, e.Values[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, e.Values[0] <= e.Values[1] && e.Values[1] <= e.Values[2], test.ShouldBeTrue)
	test.That(t, math.Abs(e.Smallest().Z), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, math.Abs(e.Largest().X), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, e.HasUniqueSmallest(), test.ShouldBeTrue)
	test.That(t, e.SurfaceVariation(), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestDegenerateEigen(t *testing.T) {
	pts := []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}}
	e, ok := SymmetricEigen(Covariance(pts, Centroid(pts)))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, e.IsDegenerate(), test.ShouldBeTrue)
	test.That(t, e.HasUniqueSmallest(), test.ShouldBeFalse)
	test.That(t, e.SurfaceVariation(), test.ShouldEqual, 0.)

	// collinear points have a repeated smallest eigenvalue
	line := []r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}}
	e, ok = SymmetricEigen(Covariance(line, Centroid(line)))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, e.HasUniqueSmallest(), test.ShouldBeFalse)
	test.That(t, e.HasUniqueLargest(), test.ShouldBeTrue)
}

func TestFrame(t *testing.T) {
	f := NewFrame(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{X: 0, Y: 0, Z: 5})
	test.That(t, f.Z.Z, test.ShouldAlmostEqual, 1)
	test.That(t, f.X.Dot(f.Y), test.ShouldAlmostEqual, 0)
	test.That(t, f.X.Dot(f.Z), test.ShouldAlmostEqual, 0)
	test.That(t, f.X.Cross(f.Y).Dot(f.Z), test.ShouldAlmostEqual, 1)

	p := r3.Vector{X: -4, Y: 0.5, Z: 7}
	back := f.ToWorld(f.ToLocal(p))
	test.That(t, back.Distance(p), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, f.ToLocal(p).Z, test.ShouldAlmostEqual, 4)
}

func TestFibonacciSphere(t *testing.T) {
	dirs := FibonacciSphere(200)
	test.That(t, dirs, test.ShouldHaveLength, 200)
	var sum r3.Vector
	for _, d := range dirs {
		test.That(t, d.Norm(), test.ShouldAlmostEqual, 1, 1e-12)
		sum = sum.Add(d)
	}
	test.That(t, sum.Mul(1./200).Norm(), test.ShouldBeLessThan, 0.02)
}
