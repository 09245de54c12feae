// Package spatialmath holds the small numerical kernels shared by the point
// processing passes: centroids, 3x3 covariance matrices and their
// eigen-decomposition, and local orthonormal frames.
package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Centroid returns the mean of the given points, or the zero vector for none.
func Centroid(points []r3.Vector) r3.Vector {
	if len(points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1. / float64(len(points)))
}

// Covariance returns the 3x3 covariance matrix of points about center,
// normalized by the number of points.
func Covariance(points []r3.Vector, center r3.Vector) *mat.SymDense {
	var cov [6]float64 // xx xy xz yy yz zz
	for _, p := range points {
		d := p.Sub(center)
		cov[0] += d.X * d.X
		cov[1] += d.X * d.Y
		cov[2] += d.X * d.Z
		cov[3] += d.Y * d.Y
		cov[4] += d.Y * d.Z
		cov[5] += d.Z * d.Z
	}
	if n := float64(len(points)); n > 0 {
		for i := range cov {
			cov[i] /= n
		}
	}
	return mat.NewSymDense(3, []float64{
		cov[0], cov[1], cov[2],
		cov[1], cov[3], cov[4],
		cov[2], cov[4], cov[5],
	})
}
