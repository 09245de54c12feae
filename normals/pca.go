package normals

import (
	"github.com/golang/geo/r3"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/spatialmath"
	"go.viam.com/pointproc/utils"
)

// MinPCANeighbors is the smallest neighborhood PCA estimation accepts.
const MinPCANeighbors = 3

// EstimatePCA sets the normal of every active point to the eigenvector of the
// smallest eigenvalue of the covariance of the point and its k nearest
// neighbors. Points with fewer than MinPCANeighbors neighbors, or whose
// neighborhood has no unique direction of least spread, are skipped.
func EstimatePCA(
	cloud pointcloud.NormalCloud,
	k int,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
) (pointcloud.Report, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return pointcloud.Report{}, err
	}
	return estimate(cloud, neighbors.New(cloud), mode, logger, "pca", func(idx *neighbors.Index, i int) (r3.Vector, pointcloud.Status) {
		ns := idx.KNearestOf(i, k)
		if len(ns) < MinPCANeighbors {
			return r3.Vector{}, pointcloud.StatusDegenerateInput
		}
		pts := neighborhood(idx, i, ns)
		eigen, ok := spatialmath.SymmetricEigen(spatialmath.Covariance(pts, spatialmath.Centroid(pts)))
		if !ok || !eigen.HasUniqueSmallest() {
			return r3.Vector{}, pointcloud.StatusRankDeficient
		}
		return eigen.Smallest(), pointcloud.StatusOK
	})
}
