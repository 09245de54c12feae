package smooth

import (
	"github.com/golang/geo/r3"

	"go.viam.com/pointproc/jet"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// Jet projects every point onto the jet of degree degreeFitting fitted to its
// k nearest neighbors. Points whose fit fails keep their position and are
// listed in the report.
func Jet(
	cloud pointcloud.EditableCloud,
	k, degreeFitting, degreeMonge int,
	mode utils.ConcurrencyMode,
) (pointcloud.Report, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return pointcloud.Report{}, err
	}
	if err := jet.ValidateDegrees(degreeFitting, degreeMonge); err != nil {
		return pointcloud.Report{}, err
	}
	idx := neighbors.New(cloud)
	active := idx.Active()
	if len(active) == 0 {
		return pointcloud.Report{}, nil
	}

	projected := make([]r3.Vector, len(active))
	statuses := make([]pointcloud.Status, len(active))
	if err := utils.ParallelFor(mode, len(active), func(j int) {
		i := active[j]
		pts := []r3.Vector{idx.Position(i)}
		for _, n := range idx.KNearestOf(i, k) {
			pts = append(pts, idx.Position(n.Index))
		}
		form, err := jet.Fit(pts, degreeFitting, degreeMonge)
		statuses[j] = jet.Status(err)
		if err == nil {
			projected[j] = form.Origin
		}
	}); err != nil {
		return pointcloud.Report{}, err
	}

	for j, i := range active {
		if statuses[j] == pointcloud.StatusOK {
			cloud.SetPosition(i, projected[j])
		}
	}
	return pointcloud.NewReport(active, statuses), nil
}
