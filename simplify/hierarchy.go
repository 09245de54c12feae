package simplify

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/spatialmath"
	"go.viam.com/pointproc/utils"
)

// HierarchyRepresentative selects what a terminal cluster is replaced by.
type HierarchyRepresentative int

const (
	// Centroid keeps the point closest to the cluster centroid and moves it onto the centroid.
	Centroid HierarchyRepresentative = iota
	// ClosestPoint keeps the point closest to the cluster centroid where it is.
	ClosestPoint
)

// ParseHierarchyRepresentative parses a config value; the empty string means Centroid.
func ParseHierarchyRepresentative(s string) (HierarchyRepresentative, error) {
	switch s {
	case "", "centroid":
		return Centroid, nil
	case "closest_point":
		return ClosestPoint, nil
	default:
		return Centroid, errors.Errorf("unknown hierarchy representative %q", s)
	}
}

// Defaults for HierarchyParams.
const (
	DefaultHierarchySize   = 10
	DefaultHierarchyVarMax = 1. / 3
)

// parallelSplitSize is the cluster size above which siblings are split on
// separate goroutines in parallel mode.
const parallelSplitSize = 2048

// HierarchyParams configures Hierarchy.
type HierarchyParams struct {
	// Size is the largest cluster that may be terminal.
	Size int
	// VarMax is the largest surface variation a terminal cluster may have.
	VarMax float64
	// Representative is what replaces each terminal cluster.
	Representative HierarchyRepresentative
}

// Validate checks the parameter ranges.
func (p HierarchyParams) Validate() error {
	if err := utils.CheckPositiveInt("size", p.Size); err != nil {
		return err
	}
	if err := utils.CheckRange("var_max", p.VarMax, 0, 1); err != nil {
		return err
	}
	if p.Representative != Centroid && p.Representative != ClosestPoint {
		return utils.NewInvalidParameterError("representative", p.Representative, "centroid or closest_point")
	}
	return nil
}

// HierarchyCloud is a cloud whose points can be removed and moved.
type HierarchyCloud interface {
	pointcloud.RemovableCloud
	pointcloud.PositionWriter
}

// cluster is a terminal cluster: the kept point and where it ends up.
type cluster struct {
	keep     int
	position r3.Vector
}

// Hierarchy recursively bisects the cloud by the plane through the centroid
// orthogonal to the axis of largest spread. A cluster is split further while
// it has more than Size points or its surface variation exceeds VarMax, so
// a cluster only stops once both bounds hold (DESIGN.md, "Open Question
// decisions", Hierarchy). It also stops when a split would leave one side
// empty. Each terminal cluster is reduced to one point. It returns the number
// of points removed.
func Hierarchy(cloud HierarchyCloud, params HierarchyParams, mode utils.ConcurrencyMode) (int, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	active := cloud.Active()
	if len(active) == 0 {
		return 0, nil
	}
	clusters, err := splitCluster(cloud, active, params, mode)
	if err != nil {
		return 0, err
	}

	keep := make(map[int]struct{}, len(clusters))
	for _, c := range clusters {
		keep[c.keep] = struct{}{}
		if params.Representative == Centroid {
			cloud.SetPosition(c.keep, c.position)
		}
	}
	removed := 0
	for _, i := range active {
		if _, ok := keep[i]; !ok {
			cloud.Remove(i)
			removed++
		}
	}
	return removed, nil
}

// splitCluster returns the terminal clusters below indices, ordered as a
// depth-first traversal visiting the negative side first.
func splitCluster(
	cloud pointcloud.PointCloud,
	indices []int,
	params HierarchyParams,
	mode utils.ConcurrencyMode,
) ([]cluster, error) {
	pts := pointcloud.Positions(cloud, indices)
	centroid := spatialmath.Centroid(pts)
	if len(indices) == 1 {
		return []cluster{{keep: indices[0], position: centroid}}, nil
	}

	eigen, ok := spatialmath.SymmetricEigen(spatialmath.Covariance(pts, centroid))
	terminal := !ok || eigen.IsDegenerate() ||
		(len(indices) <= params.Size && eigen.SurfaceVariation() <= params.VarMax)

	var negative, positive []int
	if !terminal {
		axis := eigen.Largest()
		for j, p := range pts {
			if p.Sub(centroid).Dot(axis) < 0 {
				negative = append(negative, indices[j])
			} else {
				positive = append(positive, indices[j])
			}
		}
		terminal = len(negative) == 0 || len(positive) == 0
	}
	if terminal {
		return []cluster{{keep: closestTo(pts, indices, centroid), position: centroid}}, nil
	}

	var left, right []cluster
	if mode == utils.Parallel && len(indices) > parallelSplitSize {
		var g errgroup.Group
		g.Go(func() (err error) {
			left, err = splitCluster(cloud, negative, params, mode)
			return err
		})
		g.Go(func() (err error) {
			right, err = splitCluster(cloud, positive, params, mode)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if left, err = splitCluster(cloud, negative, params, mode); err != nil {
			return nil, err
		}
		if right, err = splitCluster(cloud, positive, params, mode); err != nil {
			return nil, err
		}
	}
	return append(left, right...), nil
}

// closestTo returns the index whose position is nearest to target, the lowest on ties.
func closestTo(pts []r3.Vector, indices []int, target r3.Vector) int {
	best := 0
	bestDist := pts[0].Sub(target).Norm2()
	for j := 1; j < len(pts); j++ {
		d := pts[j].Sub(target).Norm2()
		if d < bestDist || (d == bestDist && indices[j] < indices[best]) {
			best, bestDist = j, d
		}
	}
	return indices[best]
}
