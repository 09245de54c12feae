package normals

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/spatialmath"
	"go.viam.com/pointproc/utils"
)

func flatGrid(n int, z float64, offset r3.Vector) []r3.Vector {
	pts := make([]r3.Vector, 0, n*n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			pts = append(pts, r3.Vector{X: float64(x), Y: float64(y), Z: z}.Add(offset))
		}
	}
	return pts
}

func sphereCloud(n int, noise float64, seed int64) *pointcloud.PointSet {
	rng := rand.New(rand.NewSource(seed))
	ps := pointcloud.New()
	for _, d := range spatialmath.FibonacciSphere(n) {
		ps.Insert(d.Mul(1 + noise*(rng.Float64()-0.5)))
	}
	return ps
}

func checkAllUnit(t *testing.T, ps *pointcloud.PointSet) {
	t.Helper()
	for _, i := range ps.Active() {
		n, ok := ps.Normal(i)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, n.Norm(), test.ShouldAlmostEqual, 1, 1e-9)
	}
}

// minRadialAlignment returns the smallest |n·p| over a cloud centered at the origin.
func minRadialAlignment(ps *pointcloud.PointSet) float64 {
	worst := 1.
	for _, i := range ps.Active() {
		n, _ := ps.Normal(i)
		worst = math.Min(worst, math.Abs(n.Dot(ps.Position(i).Normalize())))
	}
	return worst
}

func TestPCAFlatGridEndToEnd(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ps := pointcloud.NewFromPositions(flatGrid(100, 0, r3.Vector{}))

	report, err := EstimatePCA(ps, 8, utils.Parallel, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Processed, test.ShouldEqual, 10000)
	test.That(t, report.Failed(), test.ShouldEqual, 0)
	for _, i := range ps.Active() {
		n, ok := ps.Normal(i)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, math.Abs(n.Z), test.ShouldAlmostEqual, 1, 1e-9)
	}

	orient, err := Orient(ps, OrientParams{K: 8}, utils.Parallel, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, orient.Unreached, test.ShouldBeEmpty)
	test.That(t, orient.Oriented, test.ShouldEqual, 10000)
	test.That(t, orient.TreeEdges, test.ShouldHaveLength, 9999)
	// every point has z = 0 so the seed is the lowest index
	test.That(t, orient.Seed, test.ShouldEqual, 0)
	for _, i := range ps.Active() {
		n, _ := ps.Normal(i)
		test.That(t, n.Z, test.ShouldAlmostEqual, 1, 1e-9)
	}
}

func TestPCAUnitNormals(t *testing.T) {
	logger := logging.NewTestLogger(t)
	rng := rand.New(rand.NewSource(3))
	ps := pointcloud.New()
	for i := 0; i < 300; i++ {
		ps.Insert(r3.Vector{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()})
	}
	report, err := EstimatePCA(ps, 10, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Failed(), test.ShouldEqual, 0)
	checkAllUnit(t, ps)
}

func TestPCASphere(t *testing.T) {
	ps := sphereCloud(1000, 0.01, 1)
	_, err := EstimatePCA(ps, 12, utils.Parallel, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	checkAllUnit(t, ps)
	test.That(t, minRadialAlignment(ps), test.ShouldBeGreaterThan, 0.9)
}

func TestPCAFailures(t *testing.T) {
	logger := logging.NewTestLogger(t)

	// too few neighbors: every point is skipped and keeps no normal
	ps := pointcloud.NewFromPositions([]r3.Vector{{X: 0}, {X: 1}, {Y: 1}})
	report, err := EstimatePCA(ps, 8, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.DegenerateInput, test.ShouldResemble, []int{0, 1, 2})
	test.That(t, ps.HasNormals(), test.ShouldBeFalse)

	// duplicate points have no least spread direction
	dups := pointcloud.NewFromPositions(make([]r3.Vector, 6))
	report, err = EstimatePCA(dups, 4, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.RankDeficient, test.ShouldHaveLength, 6)

	// collinear points neither
	line := pointcloud.NewFromPositions([]r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}, {X: 4}})
	report, err = EstimatePCA(line, 4, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.RankDeficient, test.ShouldHaveLength, 5)

	// invalid k aborts before touching the cloud
	_, err = EstimatePCA(ps, 0, utils.Sequential, logger)
	test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)

	report, err = EstimatePCA(pointcloud.New(), 8, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Processed, test.ShouldEqual, 0)
}

func TestPCASequentialMatchesParallel(t *testing.T) {
	logger := logging.NewTestLogger(t)
	a := sphereCloud(500, 0.05, 9)
	b := a.Clone()
	_, err := EstimatePCA(a, 10, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = EstimatePCA(b, 10, utils.Parallel, logger)
	test.That(t, err, test.ShouldBeNil)
	for _, i := range a.Active() {
		na, _ := a.Normal(i)
		nb, _ := b.Normal(i)
		test.That(t, na, test.ShouldResemble, nb)
	}
}

func TestJetSphere(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ps := sphereCloud(1000, 0.005, 2)
	report, err := EstimateJet(ps, 15, 2, utils.Parallel, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Failed(), test.ShouldEqual, 0)
	checkAllUnit(t, ps)
	test.That(t, minRadialAlignment(ps), test.ShouldBeGreaterThan, 0.9)

	// degree 2 needs 6 points, 3 neighbors are not enough
	small := sphereCloud(50, 0, 2)
	report, err = EstimateJet(small, 3, 2, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.DegenerateInput, test.ShouldHaveLength, 50)

	_, err = EstimateJet(ps, 15, 0, utils.Sequential, logger)
	test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
}

func TestVCMSphere(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ps := sphereCloud(1000, 0, 0)
	report, err := EstimateVCM(ps, VCMParams{OffsetRadius: 0.3, NumNeighborsConvolve: 10}, utils.Parallel, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Failed(), test.ShouldEqual, 0)
	checkAllUnit(t, ps)
	test.That(t, minRadialAlignment(ps), test.ShouldBeGreaterThan, 0.9)

	byRadius := sphereCloud(1000, 0, 0)
	_, err = EstimateVCM(byRadius, VCMParams{OffsetRadius: 0.3, ConvolutionRadius: 0.2}, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	checkAllUnit(t, byRadius)
	test.That(t, minRadialAlignment(byRadius), test.ShouldBeGreaterThan, 0.9)
}

func TestVCMFlatGrid(t *testing.T) {
	ps := pointcloud.NewFromPositions(flatGrid(20, 0, r3.Vector{}))
	_, err := EstimateVCM(ps, VCMParams{OffsetRadius: 2, NumNeighborsConvolve: 8}, utils.Sequential, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	// cells on the border of the grid are open towards the outside, only
	// check points whose convolution neighborhood is made of closed cells
	for _, i := range ps.Active() {
		p := ps.Position(i)
		if p.X < 3 || p.X > 16 || p.Y < 3 || p.Y > 16 {
			continue
		}
		n, _ := ps.Normal(i)
		test.That(t, math.Abs(n.Z), test.ShouldBeGreaterThan, 0.99)
	}
}

func TestVCMParams(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ps := sphereCloud(10, 0, 0)
	for _, params := range []VCMParams{
		{},
		{OffsetRadius: -1, NumNeighborsConvolve: 3},
		{OffsetRadius: 1},
		{OffsetRadius: 1, ConvolutionRadius: -1},
		{OffsetRadius: 1, NumNeighborsConvolve: 3, NumDirections: -5},
	} {
		_, err := EstimateVCM(ps, params, utils.Sequential, logger)
		test.That(t, errors.Is(err, utils.ErrInvalidParameter), test.ShouldBeTrue)
	}
	test.That(t, ps.HasNormals(), test.ShouldBeFalse)

	// an isolated point has an unbounded cell
	isolated := pointcloud.NewFromPositions([]r3.Vector{{X: 0}, {X: 0.1}, {X: 100}})
	report, err := EstimateVCM(isolated, VCMParams{OffsetRadius: 1, NumNeighborsConvolve: 1}, utils.Sequential, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.DegenerateInput, test.ShouldResemble, []int{2})
}
