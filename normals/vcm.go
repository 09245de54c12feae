package normals

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/spatialmath"
	"go.viam.com/pointproc/utils"
)

// DefaultVCMDirections is the number of integration directions used when
// VCMParams.NumDirections is zero.
const DefaultVCMDirections = 256

// VCMParams configures EstimateVCM.
type VCMParams struct {
	// OffsetRadius bounds each Voronoi cell to a ball around its site.
	OffsetRadius float64 `json:"offset_radius"`
	// ConvolutionRadius, when positive, sums the measures of all points within
	// this distance.
	ConvolutionRadius float64 `json:"convolution_radius"`
	// NumNeighborsConvolve sums the measures of the point and its nearest
	// neighbors when ConvolutionRadius is zero.
	NumNeighborsConvolve int `json:"nb_neighbors_convolve"`
	// NumDirections is the number of sphere directions used to integrate a cell.
	NumDirections int `json:"num_directions"`
}

// Validate checks the parameter ranges.
func (p VCMParams) Validate() error {
	if !(p.OffsetRadius > 0) {
		return utils.NewInvalidParameterError("offset_radius", p.OffsetRadius, "> 0")
	}
	if p.ConvolutionRadius < 0 || math.IsNaN(p.ConvolutionRadius) {
		return utils.NewInvalidParameterError("convolution_radius", p.ConvolutionRadius, ">= 0")
	}
	if p.ConvolutionRadius == 0 {
		if err := utils.CheckPositiveInt("nb_neighbors_convolve", p.NumNeighborsConvolve); err != nil {
			return err
		}
	}
	if p.NumDirections < 0 {
		return utils.NewInvalidParameterError("num_directions", p.NumDirections, ">= 0")
	}
	return nil
}

// EstimateVCM estimates normals with the Voronoi covariance measure. The
// covariance of each point's Voronoi cell, clipped to a ball of radius
// OffsetRadius, is integrated over a set of directions; the measures of
// nearby points are then summed and the normal is the direction of largest
// spread of the sum, along which the cells of a sampled surface are elongated.
func EstimateVCM(
	cloud pointcloud.NormalCloud,
	params VCMParams,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
) (pointcloud.Report, error) {
	if err := params.Validate(); err != nil {
		return pointcloud.Report{}, err
	}
	numDirs := params.NumDirections
	if numDirs == 0 {
		numDirs = DefaultVCMDirections
	}
	dirs := spatialmath.FibonacciSphere(numDirs)

	idx := neighbors.New(cloud)
	active := idx.Active()
	if len(active) == 0 {
		return pointcloud.Report{}, nil
	}

	// first pass: per-point cell covariance, stored by position in active
	slot := make(map[int]int, len(active))
	for j, i := range active {
		slot[i] = j
	}
	measures := make([]*mat.SymDense, len(active))
	bounded := make([]bool, len(active))
	if err := utils.ParallelFor(mode, len(active), func(j int) {
		measures[j], bounded[j] = cellCovariance(idx, active[j], params.OffsetRadius, dirs)
	}); err != nil {
		return pointcloud.Report{}, err
	}

	// second pass: convolution and eigen-decomposition
	return estimate(cloud, idx, mode, logger, "vcm", func(idx *neighbors.Index, i int) (r3.Vector, pointcloud.Status) {
		if !bounded[slot[i]] {
			// no other point within twice the offset radius
			return r3.Vector{}, pointcloud.StatusDegenerateInput
		}
		var ns []neighbors.Neighbor
		if params.ConvolutionRadius > 0 {
			ns = idx.RadiusOf(i, params.ConvolutionRadius)
		} else {
			ns = idx.KNearestOf(i, params.NumNeighborsConvolve)
		}
		sum := mat.NewSymDense(3, nil)
		sum.CopySym(measures[slot[i]])
		for _, n := range ns {
			sum.AddSym(sum, measures[slot[n.Index]])
		}
		eigen, ok := spatialmath.SymmetricEigen(sum)
		if !ok || !eigen.HasUniqueLargest() {
			return r3.Vector{}, pointcloud.StatusRankDeficient
		}
		return eigen.Largest(), pointcloud.StatusOK
	})
}

// cellCovariance integrates (x-p)(x-p)^T over the Voronoi cell of point i
// intersected with the ball of radius r around it. Along each direction d the
// cell extends to the nearest bisector plane with a neighbor, so only
// neighbors closer than 2r matter. The second return is false when there are
// none and the cell is the whole ball.
func cellCovariance(idx *neighbors.Index, i int, r float64, dirs []r3.Vector) (*mat.SymDense, bool) {
	p := idx.Position(i)
	ns := idx.RadiusOf(i, 2*r)
	offsets := make([]r3.Vector, 0, len(ns))
	for _, n := range ns {
		if n.DistSq > 0 {
			offsets = append(offsets, idx.Position(n.Index).Sub(p))
		}
	}

	solidAngle := 4 * math.Pi / float64(len(dirs))
	var cov [6]float64
	for _, d := range dirs {
		rho := r
		for _, q := range offsets {
			if proj := d.Dot(q); proj > 0 {
				rho = math.Min(rho, q.Norm2()/(2*proj))
			}
		}
		// ∫_0^rho t^2 (t d)(t d)^T dt = rho^5/5 d d^T
		w := math.Pow(rho, 5) / 5 * solidAngle
		cov[0] += w * d.X * d.X
		cov[1] += w * d.X * d.Y
		cov[2] += w * d.X * d.Z
		cov[3] += w * d.Y * d.Y
		cov[4] += w * d.Y * d.Z
		cov[5] += w * d.Z * d.Z
	}
	return mat.NewSymDense(3, []float64{
		cov[0], cov[1], cov[2],
		cov[1], cov[3], cov[4],
		cov[2], cov[4], cov[5],
	}), len(offsets) > 0
}
