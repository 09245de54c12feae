package neighbors

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// AverageSpacing returns the mean, over all active points, of the mean distance
// to their k nearest neighbors. Points without any neighbor are ignored and an
// empty or single-point cloud has spacing 0.
func AverageSpacing(cloud pointcloud.PointCloud, k int, mode utils.ConcurrencyMode) (float64, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return 0, err
	}
	return New(cloud).AverageSpacing(k, mode)
}

// AverageSpacing is AverageSpacing over the indexed points.
func (idx *Index) AverageSpacing(k int, mode utils.ConcurrencyMode) (float64, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return 0, err
	}
	if idx.Len() < 2 {
		return 0, nil
	}
	spacing, err := idx.MeanDistances(k, mode)
	if err != nil {
		return 0, err
	}
	mean, err := stats.Mean(spacing)
	if err != nil {
		return 0, errors.Wrap(err, "averaging spacing")
	}
	return mean, nil
}

// MeanDistances returns, for each indexed point in Active order, the mean
// distance to its k nearest neighbors (0 when it has none).
func (idx *Index) MeanDistances(k int, mode utils.ConcurrencyMode) ([]float64, error) {
	out := make([]float64, idx.Len())
	err := utils.ParallelFor(mode, idx.Len(), func(j int) {
		ns := idx.KNearestOf(idx.active[j], k)
		if len(ns) == 0 {
			return
		}
		dists := make(stats.Float64Data, len(ns))
		for m, n := range ns {
			dists[m] = math.Sqrt(n.DistSq)
		}
		out[j], _ = dists.Mean()
	})
	return out, err
}
