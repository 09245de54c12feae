package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/pointproc/config"
	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pipeline"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("pointproc")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if !c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

func parsePCDType(s string) (pointcloud.PCDType, error) {
	switch strings.ToLower(s) {
	case "ascii":
		return pointcloud.PCDAscii, nil
	case "", "binary":
		return pointcloud.PCDBinary, nil
	default:
		return pointcloud.PCDBinary, errors.Errorf("unknown pcd format %q, expected ascii or binary", s)
	}
}

// RunAction is the corresponding Action for 'run'.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	pcdType, err := parsePCDType(c.String(runFlagPCDFormat))
	if err != nil {
		return err
	}

	cfg, err := config.Read(c.Path(runFlagConfig), logger)
	if err != nil {
		return err
	}
	if c.IsSet(runFlagConcurrency) {
		cfg.Concurrency = c.String(runFlagConcurrency)
	}
	// fail on a bad config before paying for the read
	if err := pipeline.Prepare(cfg); err != nil {
		return err
	}

	cloud, err := pointcloud.NewFromFile(c.Path(runFlagInput), logger)
	if err != nil {
		return err
	}
	out, results, err := pipeline.Run(cloud, cfg, logger)
	if err != nil {
		return err
	}
	if err := pointcloud.WriteToFile(out, c.Path(runFlagOutput), pcdType); err != nil {
		return errors.Wrapf(err, "writing %q", c.Path(runFlagOutput))
	}

	fmt.Fprintln(c.App.Writer, resultsTable(results))
	return nil
}

func resultsTable(results []pipeline.StepResult) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Step", "Type", "Before", "After", "Details", "Elapsed"})
	for i, r := range results {
		t.AppendRow(table.Row{
			i,
			r.Name,
			r.Type,
			r.PointsBefore,
			r.PointsAfter,
			resultDetails(r),
			r.Elapsed.Round(time.Millisecond),
		})
	}
	return t.Render()
}

func resultDetails(r pipeline.StepResult) string {
	var details []string
	if r.Removed > 0 {
		details = append(details, fmt.Sprintf("removed %d", r.Removed))
	}
	if r.Inserted > 0 {
		details = append(details, fmt.Sprintf("produced %d", r.Inserted))
	}
	if r.Value != 0 {
		details = append(details, fmt.Sprintf("value %.6g", r.Value))
	}
	if r.Report != nil && r.Report.Failed() > 0 {
		details = append(details, fmt.Sprintf("%d failed", r.Report.Failed()))
	}
	if r.Orientation != nil && len(r.Orientation.Unreached) > 0 {
		details = append(details, fmt.Sprintf("%d unoriented", len(r.Orientation.Unreached)))
	}
	return strings.Join(details, ", ")
}

// InfoAction is the corresponding Action for 'info'.
func InfoAction(c *cli.Context) error {
	logger := newLogger(c)
	cloud, err := pointcloud.NewFromFile(c.Path(infoFlagInput), logger)
	if err != nil {
		return err
	}
	spacing, err := neighbors.AverageSpacing(cloud, c.Int(infoFlagK), utils.Parallel)
	if err != nil {
		return err
	}

	meta := cloud.MetaData()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Property", "Value"})
	t.AppendRow(table.Row{"Points", meta.NumPoints})
	t.AppendRow(table.Row{"Normals", meta.NumNormals})
	if meta.NumPoints > 0 {
		t.AppendRow(table.Row{"Min", fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", meta.MinX, meta.MinY, meta.MinZ)})
		t.AppendRow(table.Row{"Max", fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", meta.MaxX, meta.MaxY, meta.MaxZ)})
		ext := meta.Extents()
		t.AppendRow(table.Row{"Extents", fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", ext.X, ext.Y, ext.Z)})
	}
	t.AppendRow(table.Row{"Average spacing", fmt.Sprintf("%.6g", spacing)})
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

// StepsAction is the corresponding Action for 'steps'.
func StepsAction(c *cli.Context) error {
	for _, stepType := range pipeline.RegisteredStepTypes() {
		fmt.Fprintln(c.App.Writer, stepType)
	}
	return nil
}
