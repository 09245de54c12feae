package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Frame is a right-handed orthonormal frame anchored at Origin. Z is the
// local height direction used by surface fits.
type Frame struct {
	Origin  r3.Vector
	X, Y, Z r3.Vector
}

// NewFrame builds a frame at origin whose Z axis is the normalized z.
func NewFrame(origin, z r3.Vector) Frame {
	z = z.Normalize()
	x := z.Ortho()
	y := z.Cross(x)
	return Frame{Origin: origin, X: x, Y: y, Z: z}
}

// NewFrameFromEigen builds a frame from an eigen-decomposition: the largest
// eigenvector is X and the smallest is Z.
func NewFrameFromEigen(origin r3.Vector, e Eigen3) Frame {
	x := e.Largest()
	z := e.Smallest()
	y := z.Cross(x).Normalize()
	x = y.Cross(z)
	return Frame{Origin: origin, X: x, Y: y, Z: z}
}

// ToLocal expresses a world point in the frame.
func (f Frame) ToLocal(p r3.Vector) r3.Vector {
	d := p.Sub(f.Origin)
	return r3.Vector{X: d.Dot(f.X), Y: d.Dot(f.Y), Z: d.Dot(f.Z)}
}

// ToWorld maps local coordinates back to world.
func (f Frame) ToWorld(l r3.Vector) r3.Vector {
	return f.Origin.Add(f.DirectionToWorld(l))
}

// DirectionToWorld maps a local direction back to world, ignoring the origin.
func (f Frame) DirectionToWorld(l r3.Vector) r3.Vector {
	return f.X.Mul(l.X).Add(f.Y.Mul(l.Y)).Add(f.Z.Mul(l.Z))
}

// FibonacciSphere returns n unit directions spread nearly uniformly over the
// sphere.
func FibonacciSphere(n int) []r3.Vector {
	dirs := make([]r3.Vector, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range dirs {
		z := 1 - (2*float64(i)+1)/float64(n)
		r := math.Sqrt(math.Max(0, 1-z*z))
		theta := golden * float64(i)
		dirs[i] = r3.Vector{X: r * math.Cos(theta), Y: r * math.Sin(theta), Z: z}
	}
	return dirs
}
