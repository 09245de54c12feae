package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/pointproc/config"
	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/normals"
	"go.viam.com/pointproc/pointcloud"
)

// StepResult is what a step reports back. Only the fields meaningful to the
// step type are set.
type StepResult struct {
	Name string
	Type string

	PointsBefore int
	PointsAfter  int
	Elapsed      time.Duration

	// Removed is the number of points a simplification or outlier removal step removed.
	Removed int
	// Inserted is the size of the collection a resampling step produced.
	Inserted int
	// Value is the average spacing or the mean squared displacement of a
	// bilateral smoothing step.
	Value float64
	// Report lists per-point failures of estimation and jet smoothing steps.
	Report *pointcloud.Report
	// Orientation is the outcome of an orientation step.
	Orientation *normals.OrientReport
}

// Prepare validates cfg and converts the attributes of every step. Nothing
// runs if any step is invalid.
func Prepare(cfg *config.Config) error {
	if err := cfg.Ensure(); err != nil {
		return err
	}
	for idx := range cfg.Steps {
		path := fmt.Sprintf("%s.%d", "steps", idx)
		step := &cfg.Steps[idx]
		reg, ok := LookupRegistration(step.Type)
		if !ok {
			return goutils.NewConfigValidationError(path, errors.Errorf("unknown step type %q", step.Type))
		}
		converted, err := reg.AttributeMapConverter(step.Attributes)
		if err != nil {
			return goutils.NewConfigValidationError(path+".attributes", err)
		}
		step.ConvertedAttributes = converted
		if err := step.Validate(path); err != nil {
			return err
		}
	}
	return nil
}

// Run applies the steps of cfg to cloud in order. Steps edit the working cloud
// in place, except resampling steps whose output replaces it. The final
// working cloud is returned along with one result per step that completed.
func Run(
	cloud *pointcloud.PointSet,
	cfg *config.Config,
	logger logging.Logger,
) (*pointcloud.PointSet, []StepResult, error) {
	if err := Prepare(cfg); err != nil {
		return nil, nil, err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, nil, err
	}

	runID := uuid.New().String()
	logger = logger.Sublogger("pipeline")
	env := Env{Mode: mode, Seed: cfg.Seed, Logger: logger}
	logger.Infow("starting run", "run_id", runID, "steps", len(cfg.Steps), "points", cloud.Size(), "concurrency", mode)

	start := time.Now()
	results := make([]StepResult, 0, len(cfg.Steps))
	working := cloud
	for idx, step := range cfg.Steps {
		reg, ok := LookupRegistration(step.Type)
		if !ok {
			return nil, results, errors.Errorf("step type %q was deregistered", step.Type)
		}
		attrs, ok := step.ConvertedAttributes.(config.Validator)
		if !ok {
			return nil, results, errors.Errorf("step %d has no converted attributes", idx)
		}

		stepStart := time.Now()
		before := working.Size()
		next, result, err := reg.Run(working, attrs, env)
		if err != nil {
			logger.Errorw("step failed", "run_id", runID, "step", step.StepName(), "error", err)
			return nil, results, errors.Wrapf(err, "step %d (%s) failed", idx, step.StepName())
		}
		result.Name = step.StepName()
		result.Type = step.Type
		result.PointsBefore = before
		result.PointsAfter = next.Size()
		result.Elapsed = time.Since(stepStart)
		results = append(results, result)

		logger.Infow("step done",
			"run_id", runID,
			"step", result.Name,
			"points_before", result.PointsBefore,
			"points_after", result.PointsAfter,
			"elapsed", result.Elapsed)
		if result.Report != nil && result.Report.Failed() > 0 {
			logger.Warnw("some points could not be processed",
				"run_id", runID,
				"step", result.Name,
				"degenerate", len(result.Report.DegenerateInput),
				"rank_deficient", len(result.Report.RankDeficient))
		}
		working = next
	}
	logger.Infow("run done", "run_id", runID, "points", working.Size(), "elapsed", time.Since(start))
	return working, results, nil
}
