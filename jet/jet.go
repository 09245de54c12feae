// Package jet fits local polynomial height functions ("jets") to point
// neighborhoods and extracts the Monge form of the fitted surface: the
// surface point above the fitting origin, its normal and, for second order
// and above, the principal curvatures and directions.
package jet

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/spatialmath"
	"go.viam.com/pointproc/utils"
)

var (
	// ErrTooFewPoints is returned when there are fewer points than polynomial coefficients.
	ErrTooFewPoints = errors.New("not enough points for jet fitting")
	// ErrRankDeficient is returned when the least squares system has no unique solution.
	ErrRankDeficient = errors.New("jet fitting system is rank deficient")
)

// Status maps a Fit error to the per-point status it stands for.
func Status(err error) pointcloud.Status {
	switch {
	case err == nil:
		return pointcloud.StatusOK
	case errors.Is(err, ErrTooFewPoints):
		return pointcloud.StatusDegenerateInput
	default:
		return pointcloud.StatusRankDeficient
	}
}

// conditionLimit is the smallest accepted ratio of the smallest to the largest
// singular value of the least squares matrix.
const conditionLimit = 1e-10

// MongeForm describes the fitted surface at the fitting origin.
type MongeForm struct {
	// Origin is the point of the fitted surface above the fitting origin.
	Origin r3.Vector
	// Normal is the unit surface normal at Origin. Its sign is arbitrary.
	Normal r3.Vector

	// Principal curvatures and directions, set when the Monge degree is at least 2.
	MaxCurvature, MinCurvature float64
	MaxDirection, MinDirection r3.Vector

	// Coefficients of the height polynomial in the fitting frame, ordered by
	// total degree then by decreasing power of x: 1, x, y, x², xy, y², ...
	Coefficients []float64
	// Condition is the ratio of the largest to the smallest singular value of
	// the fitting system.
	Condition float64
}

// NumCoefficients returns the number of coefficients of a bivariate polynomial
// of the given total degree.
func NumCoefficients(degree int) int {
	return (degree + 1) * (degree + 2) / 2
}

// ValidateDegrees checks 1 <= degreeMonge <= degreeFitting.
func ValidateDegrees(degreeFitting, degreeMonge int) error {
	if err := utils.CheckPositiveInt("degree_fitting", degreeFitting); err != nil {
		return err
	}
	if err := utils.CheckPositiveInt("degree_monge", degreeMonge); err != nil {
		return err
	}
	if degreeMonge > degreeFitting {
		return utils.NewInvalidParameterError("degree_monge", degreeMonge, "<= degree_fitting")
	}
	return nil
}

// Fit fits a jet of total degree degreeFitting to points. points[0] is the
// fitting origin, normally the point whose neighborhood is being fitted.
func Fit(points []r3.Vector, degreeFitting, degreeMonge int) (MongeForm, error) {
	if err := ValidateDegrees(degreeFitting, degreeMonge); err != nil {
		return MongeForm{}, err
	}
	numCoeffs := NumCoefficients(degreeFitting)
	if len(points) < numCoeffs {
		return MongeForm{}, errors.Wrapf(ErrTooFewPoints, "have %d, need %d", len(points), numCoeffs)
	}

	// the height axis is the direction of least spread of the neighborhood
	eigen, ok := spatialmath.SymmetricEigen(spatialmath.Covariance(points, spatialmath.Centroid(points)))
	if !ok || eigen.IsDegenerate() {
		return MongeForm{}, ErrRankDeficient
	}
	frame := spatialmath.NewFrameFromEigen(points[0], eigen)

	local := make([]r3.Vector, len(points))
	var precond float64
	for i, p := range points {
		local[i] = frame.ToLocal(p)
		precond += math.Abs(local[i].X) + math.Abs(local[i].Y)
	}
	precond /= 2 * float64(len(points))
	if precond == 0 {
		return MongeForm{}, ErrRankDeficient
	}

	m := mat.NewDense(len(points), numCoeffs, nil)
	z := mat.NewVecDense(len(points), nil)
	for i, l := range local {
		m.SetRow(i, monomials(l.X/precond, l.Y/precond, degreeFitting))
		z.SetVec(i, l.Z)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return MongeForm{}, ErrRankDeficient
	}
	values := svd.Values(nil)
	maxSV, minSV := values[0], values[len(values)-1]
	if maxSV == 0 || minSV <= conditionLimit*maxSV {
		return MongeForm{}, ErrRankDeficient
	}

	var solution mat.VecDense
	if err := solution.SolveVec(m, z); err != nil {
		return MongeForm{}, errors.Wrap(ErrRankDeficient, err.Error())
	}

	coeffs := make([]float64, numCoeffs)
	col := 0
	for deg := 0; deg <= degreeFitting; deg++ {
		scale := math.Pow(precond, float64(deg))
		for j := 0; j <= deg; j++ {
			coeffs[col] = solution.AtVec(col) / scale
			col++
		}
	}

	form := mongeForm(frame, coeffs, degreeMonge)
	form.Condition = maxSV / minSV
	return form, nil
}

// monomials returns x^i y^j for every i+j <= degree in coefficient order.
func monomials(x, y float64, degree int) []float64 {
	out := make([]float64, 0, NumCoefficients(degree))
	for deg := 0; deg <= degree; deg++ {
		for j := 0; j <= deg; j++ {
			out = append(out, math.Pow(x, float64(deg-j))*math.Pow(y, float64(j)))
		}
	}
	return out
}

func mongeForm(frame spatialmath.Frame, coeffs []float64, degreeMonge int) MongeForm {
	hx, hy := coeffs[1], coeffs[2]
	tx := r3.Vector{X: 1, Z: hx}
	ty := r3.Vector{Y: 1, Z: hy}
	n := tx.Cross(ty).Normalize()

	form := MongeForm{
		Origin:       frame.ToWorld(r3.Vector{Z: coeffs[0]}),
		Normal:       frame.DirectionToWorld(n).Normalize(),
		Coefficients: coeffs,
	}
	if degreeMonge < 2 || len(coeffs) < NumCoefficients(2) {
		return form
	}

	hxx, hxy, hyy := 2*coeffs[3], coeffs[4], 2*coeffs[5]
	w := math.Sqrt(1 + hx*hx + hy*hy)

	// first and second fundamental forms of the graph z = h(x, y)
	e, f, g := 1+hx*hx, hx*hy, 1+hy*hy
	l, mm, nn := hxx/w, hxy/w, hyy/w
	det := e*g - f*f

	// shape operator I^-1 II
	s00 := (g*l - f*mm) / det
	s01 := (g*mm - f*nn) / det
	s10 := (e*mm - f*l) / det
	s11 := (e*nn - f*mm) / det

	mean := (s00 + s11) / 2
	gauss := (l*nn - mm*mm) / det
	disc := math.Sqrt(math.Max(0, mean*mean-gauss))
	form.MaxCurvature = mean + disc
	form.MinCurvature = mean - disc

	// eigenvector of the shape operator for the max curvature, in (dx, dy)
	u := [2]float64{s01, form.MaxCurvature - s00}
	alt := [2]float64{form.MaxCurvature - s11, s10}
	if alt[0]*alt[0]+alt[1]*alt[1] > u[0]*u[0]+u[1]*u[1] {
		u = alt
	}
	dir := tx.Mul(u[0]).Add(ty.Mul(u[1]))
	if dir.Norm2() < 1e-24 {
		// umbilic point, every tangent direction is principal
		dir = tx
	}
	maxDir := dir.Normalize()
	minDir := n.Cross(maxDir)

	form.MaxDirection = frame.DirectionToWorld(maxDir).Normalize()
	form.MinDirection = frame.DirectionToWorld(minDir).Normalize()
	return form
}
