package resample

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// Defaults for UpsampleParams.
const (
	DefaultSharpnessAngle       = 30.
	DefaultEdgeSensitivity      = 1.
	DefaultNumberOfOutputPoints = 1000
	// upsampleRadiusFactor scales the average spacing into the automatic
	// upsampling radius.
	upsampleRadiusFactor = 3.
)

// UpsampleParams configures Upsample.
type UpsampleParams struct {
	// SharpnessAngle is the largest angle in degrees between the normals of two
	// points that may be bridged by a new point.
	SharpnessAngle float64 `json:"sharpness_angle"`
	// EdgeSensitivity raises the insertion priority of pairs with diverging
	// normals, densifying sharp features first.
	EdgeSensitivity float64 `json:"edge_sensitivity"`
	// NeighborRadius is the neighborhood radius. A non-positive value selects
	// 3 times the average spacing of the input.
	NeighborRadius float64 `json:"neighbor_radius"`
	// NumberOfOutputPoints is the total size, input included, to reach.
	NumberOfOutputPoints int `json:"number_of_output_points"`
}

// DefaultUpsampleParams returns the parameters used when a field is not configured.
func DefaultUpsampleParams() UpsampleParams {
	return UpsampleParams{
		SharpnessAngle:       DefaultSharpnessAngle,
		EdgeSensitivity:      DefaultEdgeSensitivity,
		NeighborRadius:       -1,
		NumberOfOutputPoints: DefaultNumberOfOutputPoints,
	}
}

// Validate checks the parameter ranges.
func (p UpsampleParams) Validate() error {
	if err := utils.CheckRange("sharpness_angle", p.SharpnessAngle, 0, 90); err != nil {
		return err
	}
	if err := utils.CheckRange("edge_sensitivity", p.EdgeSensitivity, 0, 5); err != nil {
		return err
	}
	if math.IsNaN(p.NeighborRadius) || math.IsInf(p.NeighborRadius, 0) {
		return utils.NewInvalidParameterError("neighbor_radius", p.NeighborRadius, "a finite value")
	}
	if p.NumberOfOutputPoints < 0 {
		return utils.NewInvalidParameterError("number_of_output_points", p.NumberOfOutputPoints, ">= 0")
	}
	return nil
}

// candidate is a new point to insert between two existing points.
type candidate struct {
	base, other int
	priority    float64
}

// Upsample densifies an oriented cloud until it holds NumberOfOutputPoints
// points. Each round, every point picks the neighbor with the highest
// insertion priority among those whose normal is within SharpnessAngle of its
// own; the priority grows with the gap between the points and with the angle
// between their normals. Midpoints are inserted by decreasing priority, each
// point taking part in at most one insertion per round, then projected onto
// the tangent planes of their neighborhood with bilateral weights. New points
// get the normalized sum of the two parent normals. Only the new points are
// appended to output; the input is not modified. It returns the number of
// points inserted.
func Upsample(
	cloud pointcloud.NormalCloud,
	output pointcloud.NormalInserter,
	params UpsampleParams,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
) (int, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	active := cloud.Active()
	if len(active) == 0 {
		return 0, nil
	}
	positions := make([]r3.Vector, 0, len(active))
	normals := make([]r3.Vector, 0, len(active))
	for _, i := range active {
		n, ok := cloud.Normal(i)
		if !ok {
			return 0, errors.Wrapf(utils.ErrMissingNormals, "point %d", i)
		}
		positions = append(positions, cloud.Position(i))
		normals = append(normals, n)
	}
	toInsert := params.NumberOfOutputPoints - len(active)
	if toInsert <= 0 {
		return 0, nil
	}

	radius := params.NeighborRadius
	if radius <= 0 {
		spacing, err := neighbors.NewFromPositions(positions).AverageSpacing(spacingNeighbors, mode)
		if err != nil {
			return 0, err
		}
		radius = upsampleRadiusFactor * spacing
	}
	if radius == 0 {
		logger.Warnw("cannot upsample coincident points", "points", len(active))
		return 0, nil
	}

	up := &upsampler{
		params:    params,
		radius:    radius,
		kernel:    newKernel(radius),
		cosSharp:  math.Cos(utils.DegToRad(params.SharpnessAngle)),
		positions: positions,
		normals:   normals,
	}
	inserted, rounds := 0, 0
	for inserted < toInsert {
		added, err := up.round(toInsert-inserted, mode)
		if err != nil {
			return 0, err
		}
		if added == 0 {
			break
		}
		inserted += added
		rounds++
	}

	for j := len(active); j < len(up.positions); j++ {
		i := output.Insert(up.positions[j])
		output.SetNormal(i, up.normals[j])
	}
	logger.Debugw("upsampled",
		"input", len(active),
		"inserted", inserted,
		"rounds", rounds,
		"radius", radius)
	if inserted < toInsert {
		logger.Warnw("upsampling stopped early", "requested", toInsert, "inserted", inserted)
	}
	return inserted, nil
}

type upsampler struct {
	params    UpsampleParams
	radius    float64
	kernel    kernel
	cosSharp  float64
	positions []r3.Vector
	normals   []r3.Vector
}

// compatible reports whether two normals are close enough to be bridged.
func (up *upsampler) compatible(a, b r3.Vector) bool {
	return a.Dot(b) >= up.cosSharp-1e-12
}

// round inserts at most limit new points and returns how many it inserted.
func (up *upsampler) round(limit int, mode utils.ConcurrencyMode) (int, error) {
	idx := neighbors.NewFromPositions(up.positions)
	n := len(up.positions)
	best := make([]candidate, n)
	if err := utils.ParallelFor(mode, n, func(j int) {
		best[j] = candidate{base: j, other: -1}
		nj := up.normals[j]
		for _, nb := range idx.RadiusOf(j, up.radius) {
			if nb.DistSq < minDistSq || !up.compatible(nj, up.normals[nb.Index]) {
				continue
			}
			boost := math.Pow(2-nj.Dot(up.normals[nb.Index]), up.params.EdgeSensitivity)
			priority := boost * math.Sqrt(nb.DistSq)
			if priority <= best[j].priority {
				continue
			}
			// a midpoint landing on an existing point adds nothing
			mid := up.positions[j].Add(up.positions[nb.Index]).Mul(0.5)
			if nearest := idx.KNearest(mid, 1); len(nearest) > 0 && nearest[0].DistSq < minDistSq {
				continue
			}
			best[j].other, best[j].priority = nb.Index, priority
		}
	}); err != nil {
		return 0, err
	}

	candidates := make([]candidate, 0, n)
	for _, c := range best {
		if c.other >= 0 {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].priority != candidates[b].priority {
			return candidates[a].priority > candidates[b].priority
		}
		return candidates[a].base < candidates[b].base
	})

	used := make([]bool, n)
	mids := make(map[r3.Vector]struct{})
	var pairs []candidate
	for _, c := range candidates {
		if len(pairs) == limit {
			break
		}
		if used[c.base] || used[c.other] {
			continue
		}
		mid := up.positions[c.base].Add(up.positions[c.other]).Mul(0.5)
		if _, dup := mids[mid]; dup {
			continue
		}
		mids[mid] = struct{}{}
		used[c.base], used[c.other] = true, true
		pairs = append(pairs, c)
	}

	newPositions := make([]r3.Vector, len(pairs))
	newNormals := make([]r3.Vector, len(pairs))
	if err := utils.ParallelFor(mode, len(pairs), func(j int) {
		newPositions[j], newNormals[j] = up.project(idx, pairs[j])
	}); err != nil {
		return 0, err
	}
	up.positions = append(up.positions, newPositions...)
	up.normals = append(up.normals, newNormals...)
	return len(pairs), nil
}

// project places the midpoint of a pair onto the bilateral average of the
// tangent planes around it.
func (up *upsampler) project(idx *neighbors.Index, c candidate) (r3.Vector, r3.Vector) {
	mid := up.positions[c.base].Add(up.positions[c.other]).Mul(0.5)
	normal := up.normals[c.base].Add(up.normals[c.other]).Normalize()

	sigma := utils.Square(1 - up.cosSharp)
	offset, weights := 0., 0.
	for _, nb := range idx.Radius(mid, up.radius) {
		ns := up.normals[nb.Index]
		w := up.kernel.weight(nb.DistSq)
		if sigma > 0 {
			w *= math.Exp(-utils.Square(1-normal.Dot(ns)) / sigma)
		} else if !up.compatible(normal, ns) {
			continue
		}
		offset += w * up.positions[nb.Index].Sub(mid).Dot(ns)
		weights += w
	}
	if weights > 0 {
		mid = mid.Add(normal.Mul(offset / weights))
	}
	return mid, normal
}
