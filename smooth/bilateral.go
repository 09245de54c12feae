// Package smooth denoises point clouds in place: bilateral projection, jet
// projection and statistical outlier removal. Every pass reads a snapshot of
// the cloud and applies its writes only after all points have been computed.
package smooth

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// radiusShrink scales the farthest k-neighbor distance into the bilateral
// support radius.
const radiusShrink = 0.95

// Bilateral moves every point onto the weighted average of the tangent planes
// of its k nearest neighbors and replaces its normal by the weighted average
// of theirs. Weights combine a spatial gaussian with a normal similarity term
// controlled by sharpnessAngle in degrees, so neighbors across a sharp
// feature have little influence. The cloud must carry a normal for every
// active point. It returns the mean squared displacement of the points.
func Bilateral(
	cloud pointcloud.EditableCloud,
	k int,
	sharpnessAngle float64,
	mode utils.ConcurrencyMode,
) (float64, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return 0, err
	}
	if err := utils.CheckRange("sharpness_angle", sharpnessAngle, 0, 90); err != nil {
		return 0, err
	}
	idx := neighbors.New(cloud)
	active := idx.Active()
	if len(active) == 0 {
		return 0, nil
	}
	normals := make([]r3.Vector, active[len(active)-1]+1)
	for _, i := range active {
		n, ok := cloud.Normal(i)
		if !ok {
			return 0, errors.Wrapf(utils.ErrMissingNormals, "point %d", i)
		}
		normals[i] = n
	}

	hoods := make([][]neighbors.Neighbor, len(active))
	farthest := make([]float64, len(active))
	if err := utils.ParallelFor(mode, len(active), func(j int) {
		hoods[j] = idx.KNearestOf(active[j], k)
		if len(hoods[j]) > 0 {
			farthest[j] = hoods[j][len(hoods[j])-1].DistSq
		}
	}); err != nil {
		return 0, err
	}
	maxSq := 0.
	for _, d := range farthest {
		maxSq = math.Max(maxSq, d)
	}
	radius := radiusShrink * math.Sqrt(maxSq)
	if radius == 0 {
		return 0, nil
	}
	radiusSq := radius * radius
	iradius16 := -4 / radiusSq
	cosSigma := math.Cos(utils.DegToRad(sharpnessAngle))
	bandwidth := utils.Square(1 - cosSigma)

	positions := make([]r3.Vector, len(active))
	updated := make([]r3.Vector, len(active))
	displacement := make([]float64, len(active))
	if err := utils.ParallelFor(mode, len(active), func(j int) {
		i := active[j]
		p, n := idx.Position(i), normals[i]
		positions[j], updated[j] = p, n

		var normalSum r3.Vector
		projSum, weightSum := 0., 0.
		for _, nb := range hoods[j] {
			if nb.DistSq > radiusSq {
				break
			}
			nq := normals[nb.Index]
			var psi float64
			switch {
			case bandwidth > 0:
				psi = math.Exp(-utils.Square(1-n.Dot(nq)) / bandwidth)
			case n.Dot(nq) >= 1-1e-12:
				psi = 1
			}
			w := math.Exp(nb.DistSq*iradius16) * psi
			projSum += p.Sub(idx.Position(nb.Index)).Dot(nq) * w
			normalSum = normalSum.Add(nq.Mul(w))
			weightSum += w
		}
		if weightSum == 0 || normalSum.Norm2() == 0 {
			return
		}
		nn := normalSum.Mul(1 / weightSum).Normalize()
		positions[j] = p.Sub(nn.Mul(projSum / weightSum))
		updated[j] = nn
		displacement[j] = positions[j].Sub(p).Norm2()
	}); err != nil {
		return 0, err
	}

	sum := 0.
	for j, i := range active {
		cloud.SetPosition(i, positions[j])
		cloud.SetNormal(i, updated[j])
		sum += displacement[j]
	}
	return sum / float64(len(active)), nil
}
