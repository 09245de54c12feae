package normals

import (
	"github.com/golang/geo/r3"

	"go.viam.com/pointproc/jet"
	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// EstimateJet sets the normal of every active point to the normal of a jet of
// degree degreeFitting fitted to the point and its k nearest neighbors.
func EstimateJet(
	cloud pointcloud.NormalCloud,
	k, degreeFitting int,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
) (pointcloud.Report, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return pointcloud.Report{}, err
	}
	if err := jet.ValidateDegrees(degreeFitting, 1); err != nil {
		return pointcloud.Report{}, err
	}
	return estimate(cloud, neighbors.New(cloud), mode, logger, "jet", func(idx *neighbors.Index, i int) (r3.Vector, pointcloud.Status) {
		form, err := jet.Fit(neighborhood(idx, i, idx.KNearestOf(i, k)), degreeFitting, 1)
		if err != nil {
			return r3.Vector{}, jet.Status(err)
		}
		return form.Normal, pointcloud.StatusOK
	})
}
