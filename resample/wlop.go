// Package resample produces new point collections from an input cloud: a
// regularized subsample (WLOP) and an edge-aware upsampling. The input cloud
// is never modified; results are appended to a caller supplied output.
package resample

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// Defaults for WLOPParams.
const (
	DefaultSelectPercentage = 5.
	DefaultMaxIterations    = 35
	// repulsionMu balances the repulsion term against the attraction term.
	repulsionMu = 0.45
	// spacingNeighbors is the k used to estimate the average spacing when a
	// radius is derived automatically.
	spacingNeighbors = 6
	// wlopRadiusFactor scales the average spacing into the automatic WLOP radius.
	wlopRadiusFactor = 8.
	// minDistSq is the squared distance below which two points are treated as
	// coincident and ignored by the weighting terms.
	minDistSq = 1e-10
)

// WLOPParams configures WLOP.
type WLOPParams struct {
	// SelectPercentage is the size of the output as a percentage of the input.
	SelectPercentage float64 `json:"select_percentage"`
	// NeighborRadius is the support of the weighting kernel. A non-positive
	// value selects 8 times the average spacing of the input.
	NeighborRadius float64 `json:"neighbor_radius"`
	// MaxIterations is the number of projection iterations.
	MaxIterations int `json:"max_iter_number"`
	// RequireUniformSampling weights input points by their inverse local density.
	RequireUniformSampling bool `json:"require_uniform_sampling"`
	// Seed drives the choice of initial samples.
	Seed int64 `json:"-"`
}

// DefaultWLOPParams returns the parameters used when a field is not configured.
func DefaultWLOPParams() WLOPParams {
	return WLOPParams{
		SelectPercentage: DefaultSelectPercentage,
		NeighborRadius:   -1,
		MaxIterations:    DefaultMaxIterations,
	}
}

// Validate checks the parameter ranges.
func (p WLOPParams) Validate() error {
	if err := utils.CheckPercentage("select_percentage", p.SelectPercentage); err != nil {
		return err
	}
	if math.IsNaN(p.NeighborRadius) || math.IsInf(p.NeighborRadius, 0) {
		return utils.NewInvalidParameterError("neighbor_radius", p.NeighborRadius, "a finite value")
	}
	if p.MaxIterations < 0 {
		return utils.NewInvalidParameterError("max_iter_number", p.MaxIterations, ">= 0")
	}
	return nil
}

// kernel is the fast decaying weight theta(d) = exp(-4 d^2 / h^2) of the
// locally optimal projection.
type kernel float64

func newKernel(radius float64) kernel {
	return kernel(-4 / (radius * radius))
}

func (k kernel) weight(distSq float64) float64 {
	return math.Exp(distSq * float64(k))
}

// WLOP simplifies and regularizes the input with the weighted locally optimal
// projection. A random subset of SelectPercentage percent of the active
// points is iteratively attracted towards the input and pushed away from the
// other samples. Every iteration reads a frozen snapshot of the samples and
// writes the next positions into a separate buffer. The final samples are
// appended to output and their number is returned.
func WLOP(
	input pointcloud.PointCloud,
	output pointcloud.Inserter,
	params WLOPParams,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
) (int, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	original := neighbors.New(input)
	active := original.Active()
	numSamples := int(float64(len(active)) * params.SelectPercentage / 100)
	if numSamples == 0 {
		return 0, nil
	}

	radius := params.NeighborRadius
	if radius <= 0 {
		spacing, err := original.AverageSpacing(spacingNeighbors, mode)
		if err != nil {
			return 0, err
		}
		radius = wlopRadiusFactor * spacing
	}

	//nolint:gosec
	rng := rand.New(rand.NewSource(params.Seed))
	samples := make([]r3.Vector, numSamples)
	for j, pick := range rng.Perm(len(active))[:numSamples] {
		samples[j] = original.Position(active[pick])
	}

	iterations := params.MaxIterations
	if radius == 0 {
		// coincident input, nothing to project
		iterations = 0
	}
	k := newKernel(radius)

	var densities []float64
	if params.RequireUniformSampling && iterations > 0 {
		densities = make([]float64, active[len(active)-1]+1)
		if err := utils.ParallelFor(mode, len(active), func(j int) {
			i := active[j]
			sum := 1.
			for _, n := range original.RadiusOf(i, radius) {
				sum += k.weight(n.DistSq)
			}
			densities[i] = 1 / sum
		}); err != nil {
			return 0, err
		}
	}

	next := make([]r3.Vector, numSamples)
	sampleDensities := make([]float64, numSamples)
	for iter := 0; iter < iterations; iter++ {
		snapshot := neighbors.NewFromPositions(samples)
		if err := utils.ParallelFor(mode, numSamples, func(j int) {
			sum := 1.
			for _, n := range snapshot.RadiusOf(j, radius) {
				sum += k.weight(n.DistSq)
			}
			sampleDensities[j] = sum
		}); err != nil {
			return 0, err
		}
		if err := utils.ParallelFor(mode, numSamples, func(j int) {
			p := samples[j]
			next[j] = attraction(original, p, radius, k, densities).
				Add(repulsion(snapshot, j, radius, k, sampleDensities).Mul(repulsionMu))
		}); err != nil {
			return 0, err
		}
		samples, next = next, samples
	}

	for _, p := range samples {
		output.Insert(p)
	}
	logger.Debugw("wlop",
		"input", len(active),
		"samples", numSamples,
		"radius", radius,
		"iterations", iterations,
		"uniform", params.RequireUniformSampling)
	return numSamples, nil
}

// attraction returns the weighted average of the input points around p, or p
// itself when no input point is in range.
func attraction(original *neighbors.Index, p r3.Vector, radius float64, k kernel, densities []float64) r3.Vector {
	var sum r3.Vector
	weights := 0.
	for _, n := range original.Radius(p, radius) {
		if n.DistSq < minDistSq {
			continue
		}
		w := k.weight(n.DistSq)
		if densities != nil {
			w *= densities[n.Index]
		}
		sum = sum.Add(original.Position(n.Index).Mul(w))
		weights += w
	}
	if weights == 0 {
		return p
	}
	return sum.Mul(1 / weights)
}

// repulsion returns the weighted average displacement of sample j away from
// the other samples.
func repulsion(snapshot *neighbors.Index, j int, radius float64, k kernel, densities []float64) r3.Vector {
	p := snapshot.Position(j)
	var sum r3.Vector
	weights := 0.
	for _, n := range snapshot.RadiusOf(j, radius) {
		if n.DistSq < minDistSq {
			continue
		}
		w := k.weight(n.DistSq) / n.DistSq * densities[n.Index]
		sum = sum.Add(p.Sub(snapshot.Position(n.Index)).Mul(w))
		weights += w
	}
	if weights == 0 {
		return r3.Vector{}
	}
	return sum.Mul(1 / weights)
}
