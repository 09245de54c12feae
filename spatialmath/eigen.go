package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// eigenEpsilon is the relative threshold under which the eigenvalues of a
// covariance matrix are treated as zero.
const eigenEpsilon = 1e-12

// Eigen3 is the eigen-decomposition of a symmetric 3x3 matrix. Values are in
// ascending order and Vectors[i] is the unit eigenvector of Values[i].
type Eigen3 struct {
	Values  [3]float64
	Vectors [3]r3.Vector
}

// SymmetricEigen decomposes a symmetric 3x3 matrix. It returns false when the
// factorization fails.
func SymmetricEigen(m mat.Symmetric) (Eigen3, bool) {
	var eigen mat.EigenSym
	if ok := eigen.Factorize(m, true); !ok {
		return Eigen3{}, false
	}
	vals := eigen.Values(nil)
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	var out Eigen3
	for i := 0; i < 3; i++ {
		out.Values[i] = vals[i]
		out.Vectors[i] = r3.Vector{X: vecs.At(0, i), Y: vecs.At(1, i), Z: vecs.At(2, i)}.Normalize()
	}
	return out, true
}

// Smallest returns the eigenvector of the smallest eigenvalue.
func (e Eigen3) Smallest() r3.Vector {
	return e.Vectors[0]
}

// Largest returns the eigenvector of the largest eigenvalue.
func (e Eigen3) Largest() r3.Vector {
	return e.Vectors[2]
}

// Trace is the sum of the eigenvalues.
func (e Eigen3) Trace() float64 {
	return e.Values[0] + e.Values[1] + e.Values[2]
}

// IsDegenerate reports whether all eigenvalues are numerically zero, in which case
// no eigenvector direction is well defined.
func (e Eigen3) IsDegenerate() bool {
	return math.Abs(e.Values[2]) <= eigenEpsilon
}

// HasUniqueSmallest reports whether the smallest eigenvalue is separated from the
// middle one, i.e. the eigenvector of the smallest eigenvalue is well defined.
func (e Eigen3) HasUniqueSmallest() bool {
	if e.IsDegenerate() {
		return false
	}
	return e.Values[1]-e.Values[0] > eigenEpsilon*e.Values[2]
}

// HasUniqueLargest is HasUniqueSmallest for the largest eigenvalue.
func (e Eigen3) HasUniqueLargest() bool {
	if e.IsDegenerate() {
		return false
	}
	return e.Values[2]-e.Values[1] > eigenEpsilon*e.Values[2]
}

// SurfaceVariation is λ0 / (λ0 + λ1 + λ2), zero for a degenerate matrix.
func (e Eigen3) SurfaceVariation() float64 {
	trace := e.Trace()
	if trace <= eigenEpsilon {
		return 0
	}
	return math.Max(e.Values[0], 0) / trace
}
