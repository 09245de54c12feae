package pipeline

import (
	"math"

	goutils "go.viam.com/utils"

	"go.viam.com/pointproc/jet"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/normals"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/resample"
	"go.viam.com/pointproc/simplify"
	"go.viam.com/pointproc/smooth"
	"go.viam.com/pointproc/utils"
)

// Step types.
const (
	PCAEstimateNormals     = "pca_estimate_normals"
	JetEstimateNormals     = "jet_estimate_normals"
	VCMEstimateNormals     = "vcm_estimate_normals"
	MSTOrientNormals       = "mst_orient_normals"
	GridSimplify           = "grid_simplify_point_set"
	RandomSimplify         = "random_simplify_point_set"
	HierarchySimplify      = "hierarchy_simplify_point_set"
	WLOPSimplify           = "wlop_simplify_and_regularize_point_set"
	EdgeAwareUpsample      = "edge_aware_upsample_point_set"
	BilateralSmooth        = "bilateral_smooth_point_set"
	JetSmooth              = "jet_smooth_point_set"
	RemoveOutliers         = "remove_outliers"
	ComputeAverageSpacing  = "compute_average_spacing"
	defaultNeighbors       = 18
	defaultSpacingNeighbor = 6
)

// validation attaches a config path to an attribute range error.
func validation(path string, err error) error {
	if err == nil {
		return nil
	}
	return goutils.NewConfigValidationError(path, err)
}

type neighborsAttrs struct {
	K int `json:"k"`
}

func (a *neighborsAttrs) Validate(path string) error {
	return validation(path, utils.CheckPositiveInt("k", a.K))
}

type jetNormalsAttrs struct {
	K             int `json:"k"`
	DegreeFitting int `json:"degree_fitting"`
}

func (a *jetNormalsAttrs) Validate(path string) error {
	if err := utils.CheckPositiveInt("k", a.K); err != nil {
		return validation(path, err)
	}
	return validation(path, jet.ValidateDegrees(a.DegreeFitting, 1))
}

type vcmAttrs struct {
	normals.VCMParams
}

func (a *vcmAttrs) Validate(path string) error {
	return validation(path, a.VCMParams.Validate())
}

type orientAttrs struct {
	normals.OrientParams
}

func (a *orientAttrs) Validate(path string) error {
	if err := utils.CheckPositiveInt("k", a.K); err != nil {
		return validation(path, err)
	}
	if a.Seed != nil && *a.Seed < 0 {
		return validation(path, utils.NewInvalidParameterError("seed_index", *a.Seed, ">= 0"))
	}
	return nil
}

type gridAttrs struct {
	Epsilon        float64 `json:"epsilon"`
	Representative string  `json:"representative"`
}

func (a *gridAttrs) Validate(path string) error {
	if !(a.Epsilon > 0) || math.IsInf(a.Epsilon, 1) {
		return validation(path, utils.NewInvalidParameterError("epsilon", a.Epsilon, "a finite value > 0"))
	}
	_, err := simplify.ParseGridRepresentative(a.Representative)
	return validation(path, err)
}

type randomAttrs struct {
	RemovedPercentage float64 `json:"removed_percentage"`
	Seed              *int64  `json:"seed"`
}

func (a *randomAttrs) Validate(path string) error {
	return validation(path, utils.CheckPercentage("removed_percentage", a.RemovedPercentage))
}

type hierarchyAttrs struct {
	Size           int     `json:"size"`
	VarMax         float64 `json:"var_max"`
	Representative string  `json:"representative"`
}

func (a *hierarchyAttrs) params() (simplify.HierarchyParams, error) {
	rep, err := simplify.ParseHierarchyRepresentative(a.Representative)
	if err != nil {
		return simplify.HierarchyParams{}, err
	}
	params := simplify.HierarchyParams{Size: a.Size, VarMax: a.VarMax, Representative: rep}
	return params, params.Validate()
}

func (a *hierarchyAttrs) Validate(path string) error {
	_, err := a.params()
	return validation(path, err)
}

type wlopAttrs struct {
	resample.WLOPParams
	Seed *int64 `json:"seed"`
}

func (a *wlopAttrs) Validate(path string) error {
	return validation(path, a.WLOPParams.Validate())
}

type upsampleAttrs struct {
	resample.UpsampleParams
}

func (a *upsampleAttrs) Validate(path string) error {
	return validation(path, a.UpsampleParams.Validate())
}

type bilateralAttrs struct {
	K              int     `json:"k"`
	SharpnessAngle float64 `json:"sharpness_angle"`
}

func (a *bilateralAttrs) Validate(path string) error {
	if err := utils.CheckPositiveInt("k", a.K); err != nil {
		return validation(path, err)
	}
	return validation(path, utils.CheckRange("sharpness_angle", a.SharpnessAngle, 0, 90))
}

type jetSmoothAttrs struct {
	K             int `json:"k"`
	DegreeFitting int `json:"degree_fitting"`
	DegreeMonge   int `json:"degree_monge"`
}

func (a *jetSmoothAttrs) Validate(path string) error {
	if err := utils.CheckPositiveInt("k", a.K); err != nil {
		return validation(path, err)
	}
	return validation(path, jet.ValidateDegrees(a.DegreeFitting, a.DegreeMonge))
}

type outlierAttrs struct {
	K                int     `json:"k"`
	ThresholdPercent float64 `json:"threshold_percent"`
}

func (a *outlierAttrs) Validate(path string) error {
	if err := utils.CheckPositiveInt("k", a.K); err != nil {
		return validation(path, err)
	}
	return validation(path, utils.CheckPercentage("threshold_percent", a.ThresholdPercent))
}

// seedOr returns the step's own seed when set.
func seedOr(seed *int64, env Env) int64 {
	if seed != nil {
		return *seed
	}
	return env.Seed
}

func init() {
	RegisterStep(PCAEstimateNormals, Registration[*neighborsAttrs]{
		AttributeMapConverter: attributeConverter(neighborsAttrs{K: defaultNeighbors}),
		Run: func(cloud *pointcloud.PointSet, a *neighborsAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			report, err := normals.EstimatePCA(cloud, a.K, env.Mode, env.Logger)
			return cloud, StepResult{Report: &report}, err
		},
	})
	RegisterStep(JetEstimateNormals, Registration[*jetNormalsAttrs]{
		AttributeMapConverter: attributeConverter(jetNormalsAttrs{K: defaultNeighbors, DegreeFitting: 2}),
		Run: func(cloud *pointcloud.PointSet, a *jetNormalsAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			report, err := normals.EstimateJet(cloud, a.K, a.DegreeFitting, env.Mode, env.Logger)
			return cloud, StepResult{Report: &report}, err
		},
	})
	RegisterStep(VCMEstimateNormals, Registration[*vcmAttrs]{
		AttributeMapConverter: attributeConverter(vcmAttrs{}),
		Run: func(cloud *pointcloud.PointSet, a *vcmAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			report, err := normals.EstimateVCM(cloud, a.VCMParams, env.Mode, env.Logger)
			return cloud, StepResult{Report: &report}, err
		},
	})
	RegisterStep(MSTOrientNormals, Registration[*orientAttrs]{
		AttributeMapConverter: attributeConverter(orientAttrs{normals.OrientParams{K: defaultNeighbors}}),
		Run: func(cloud *pointcloud.PointSet, a *orientAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			report, err := normals.Orient(cloud, a.OrientParams, env.Mode, env.Logger)
			return cloud, StepResult{Orientation: &report}, err
		},
	})
	RegisterStep(GridSimplify, Registration[*gridAttrs]{
		AttributeMapConverter: attributeConverter(gridAttrs{}),
		Run: func(cloud *pointcloud.PointSet, a *gridAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			policy, err := simplify.ParseGridRepresentative(a.Representative)
			if err != nil {
				return nil, StepResult{}, err
			}
			removed, err := simplify.Grid(cloud, a.Epsilon, policy, env.Mode)
			return cloud, StepResult{Removed: removed}, err
		},
	})
	RegisterStep(RandomSimplify, Registration[*randomAttrs]{
		AttributeMapConverter: attributeConverter(randomAttrs{}),
		Run: func(cloud *pointcloud.PointSet, a *randomAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			removed, err := simplify.Random(cloud, a.RemovedPercentage, seedOr(a.Seed, env))
			return cloud, StepResult{Removed: removed}, err
		},
	})
	RegisterStep(HierarchySimplify, Registration[*hierarchyAttrs]{
		AttributeMapConverter: attributeConverter(hierarchyAttrs{
			Size:   simplify.DefaultHierarchySize,
			VarMax: simplify.DefaultHierarchyVarMax,
		}),
		Run: func(cloud *pointcloud.PointSet, a *hierarchyAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			params, err := a.params()
			if err != nil {
				return nil, StepResult{}, err
			}
			removed, err := simplify.Hierarchy(cloud, params, env.Mode)
			return cloud, StepResult{Removed: removed}, err
		},
	})
	RegisterStep(WLOPSimplify, Registration[*wlopAttrs]{
		AttributeMapConverter: attributeConverter(wlopAttrs{WLOPParams: resample.DefaultWLOPParams()}),
		Run: func(cloud *pointcloud.PointSet, a *wlopAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			params := a.WLOPParams
			params.Seed = seedOr(a.Seed, env)
			out := pointcloud.New()
			n, err := resample.WLOP(cloud, out, params, env.Mode, env.Logger)
			if err != nil {
				return nil, StepResult{}, err
			}
			return out, StepResult{Inserted: n}, nil
		},
	})
	RegisterStep(EdgeAwareUpsample, Registration[*upsampleAttrs]{
		AttributeMapConverter: attributeConverter(upsampleAttrs{resample.DefaultUpsampleParams()}),
		Run: func(cloud *pointcloud.PointSet, a *upsampleAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			out := cloud.Clone()
			out.Compact()
			n, err := resample.Upsample(cloud, out, a.UpsampleParams, env.Mode, env.Logger)
			if err != nil {
				return nil, StepResult{}, err
			}
			return out, StepResult{Inserted: n}, nil
		},
	})
	RegisterStep(BilateralSmooth, Registration[*bilateralAttrs]{
		AttributeMapConverter: attributeConverter(bilateralAttrs{K: defaultNeighbors, SharpnessAngle: resample.DefaultSharpnessAngle}),
		Run: func(cloud *pointcloud.PointSet, a *bilateralAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			moved, err := smooth.Bilateral(cloud, a.K, a.SharpnessAngle, env.Mode)
			return cloud, StepResult{Value: moved}, err
		},
	})
	RegisterStep(JetSmooth, Registration[*jetSmoothAttrs]{
		AttributeMapConverter: attributeConverter(jetSmoothAttrs{K: defaultNeighbors, DegreeFitting: 2, DegreeMonge: 2}),
		Run: func(cloud *pointcloud.PointSet, a *jetSmoothAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			report, err := smooth.Jet(cloud, a.K, a.DegreeFitting, a.DegreeMonge, env.Mode)
			return cloud, StepResult{Report: &report}, err
		},
	})
	RegisterStep(RemoveOutliers, Registration[*outlierAttrs]{
		AttributeMapConverter: attributeConverter(outlierAttrs{K: defaultNeighbors, ThresholdPercent: 5}),
		Run: func(cloud *pointcloud.PointSet, a *outlierAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			removed, err := smooth.RemoveOutliers(cloud, a.K, a.ThresholdPercent, env.Mode)
			return cloud, StepResult{Removed: removed}, err
		},
	})
	RegisterStep(ComputeAverageSpacing, Registration[*neighborsAttrs]{
		AttributeMapConverter: attributeConverter(neighborsAttrs{K: defaultSpacingNeighbor}),
		Run: func(cloud *pointcloud.PointSet, a *neighborsAttrs, env Env) (*pointcloud.PointSet, StepResult, error) {
			spacing, err := neighbors.AverageSpacing(cloud, a.K, env.Mode)
			if err == nil {
				env.Logger.Infow("average spacing", "k", a.K, "spacing", spacing)
			}
			return cloud, StepResult{Value: spacing}, err
		},
	})
}
