// Package normals estimates unoriented surface normals for point clouds and
// orients them consistently.
//
// Three estimators are available: PCA of the local covariance, jet surface
// fitting and the Voronoi covariance measure. Each writes a unit normal for
// every point it can handle and leaves the normal of any other point untouched,
// listing it in the returned report. The sign of an estimated normal is
// arbitrary until Orient is run.
package normals

import (
	"github.com/golang/geo/r3"
	"go.uber.org/atomic"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// estimatorFunc computes the normal of store index i from the snapshot idx.
type estimatorFunc func(idx *neighbors.Index, i int) (r3.Vector, pointcloud.Status)

// estimate runs fn for every active point and writes the successful normals
// once every point has been computed.
func estimate(
	cloud pointcloud.NormalCloud,
	idx *neighbors.Index,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
	method string,
	fn estimatorFunc,
) (pointcloud.Report, error) {
	active := idx.Active()
	if len(active) == 0 {
		return pointcloud.Report{}, nil
	}

	results := make([]r3.Vector, len(active))
	statuses := make([]pointcloud.Status, len(active))
	failed := atomic.NewInt64(0)
	if err := utils.ParallelFor(mode, len(active), func(j int) {
		results[j], statuses[j] = fn(idx, active[j])
		if statuses[j] != pointcloud.StatusOK {
			failed.Inc()
		}
	}); err != nil {
		return pointcloud.Report{}, err
	}

	for j, i := range active {
		if statuses[j] == pointcloud.StatusOK {
			cloud.SetNormal(i, results[j])
		}
	}
	logger.Debugw("estimated normals", "method", method, "points", len(active), "failed", failed.Load())
	return pointcloud.NewReport(active, statuses), nil
}

// neighborhood returns the position of i followed by the positions of its
// neighbors.
func neighborhood(idx *neighbors.Index, i int, ns []neighbors.Neighbor) []r3.Vector {
	pts := make([]r3.Vector, 0, len(ns)+1)
	pts = append(pts, idx.Position(i))
	for _, n := range ns {
		pts = append(pts, idx.Position(n.Index))
	}
	return pts
}
