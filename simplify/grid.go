// Package simplify reduces the density of point clouds by marking points
// removed. Nothing is compacted; callers see the result through Active.
package simplify

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// GridRepresentative selects which point of a grid cell survives.
type GridRepresentative int

const (
	// FirstInCell keeps the lowest active index of each cell.
	FirstInCell GridRepresentative = iota
	// ClosestToCenter keeps the point closest to the cell center, lowest index on ties.
	ClosestToCenter
)

// ParseGridRepresentative parses a config value; the empty string means FirstInCell.
func ParseGridRepresentative(s string) (GridRepresentative, error) {
	switch s {
	case "", "first":
		return FirstInCell, nil
	case "closest_to_center":
		return ClosestToCenter, nil
	default:
		return FirstInCell, errors.Errorf("unknown grid representative %q", s)
	}
}

type cellKey [3]int64

// maxCellIndex bounds |coordinate / epsilon| so cell indices convert to int64 exactly.
const maxCellIndex = 1 << 62

// cellOf returns the cell holding p. It reports false when a coordinate lies
// too many cells from the origin, or is not a number.
func cellOf(p r3.Vector, epsilon float64) (cellKey, bool) {
	var key cellKey
	for axis, v := range [3]float64{p.X, p.Y, p.Z} {
		q := math.Floor(v / epsilon)
		if !(math.Abs(q) <= maxCellIndex) {
			return cellKey{}, false
		}
		key[axis] = int64(q)
	}
	return key, true
}

func (c cellKey) center(epsilon float64) r3.Vector {
	return r3.Vector{
		X: (float64(c[0]) + 0.5) * epsilon,
		Y: (float64(c[1]) + 0.5) * epsilon,
		Z: (float64(c[2]) + 0.5) * epsilon,
	}
}

// Grid partitions space into cubes of side epsilon anchored at the origin and
// keeps exactly one point per occupied cube. It returns the number of points removed.
func Grid(
	cloud pointcloud.RemovableCloud,
	epsilon float64,
	policy GridRepresentative,
	mode utils.ConcurrencyMode,
) (int, error) {
	if !(epsilon > 0) || math.IsInf(epsilon, 1) {
		return 0, utils.NewInvalidParameterError("epsilon", epsilon, "a finite value > 0")
	}
	if policy != FirstInCell && policy != ClosestToCenter {
		return 0, utils.NewInvalidParameterError("representative", policy, "first or closest_to_center")
	}

	active := cloud.Active()
	keys := make([]cellKey, len(active))
	dists := make([]float64, len(active))
	inRange := make([]bool, len(active))
	if err := utils.ParallelFor(mode, len(active), func(j int) {
		p := cloud.Position(active[j])
		keys[j], inRange[j] = cellOf(p, epsilon)
		if policy == ClosestToCenter {
			dists[j] = p.Sub(keys[j].center(epsilon)).Norm2()
		}
	}); err != nil {
		return 0, err
	}
	for j, ok := range inRange {
		if !ok {
			return 0, errors.Wrapf(
				utils.NewInvalidParameterError("epsilon", epsilon, "at least |coordinate| / 2^62 for every point"),
				"point %d at %v", active[j], cloud.Position(active[j]))
		}
	}

	// position in active of the current representative of each cell
	kept := make(map[cellKey]int)
	for j := range active {
		best, ok := kept[keys[j]]
		if !ok || (policy == ClosestToCenter && dists[j] < dists[best]) {
			kept[keys[j]] = j
		}
	}

	keep := make([]bool, len(active))
	for _, j := range kept {
		keep[j] = true
	}
	removed := 0
	for j, i := range active {
		if !keep[j] {
			cloud.Remove(i)
			removed++
		}
	}
	return removed, nil
}
