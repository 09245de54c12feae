// Package cli contains the pointproc command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagDebug = "debug"

	runFlagInput       = "input"
	runFlagOutput      = "output"
	runFlagConfig      = "config"
	runFlagConcurrency = "concurrency"
	runFlagPCDFormat   = "pcd-format"

	infoFlagInput = "input"
	infoFlagK     = "k"
)

// NewApp returns the pointproc app, writing regular output to out and errors to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "pointproc",
		Usage:           "process point clouds",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "apply the steps of a config to a point cloud",
				UsageText: "pointproc run --input <in.pcd|in.las> --output <out.pcd|out.las> --config <run.json>",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     runFlagInput,
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "read the cloud from `FILE` (.pcd or .las)",
					},
					&cli.PathFlag{
						Name:     runFlagOutput,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "write the processed cloud to `FILE` (.pcd or .las)",
					},
					&cli.PathFlag{
						Name:     runFlagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load the run configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  runFlagConcurrency,
						Usage: "override the configured concurrency (sequential or parallel)",
					},
					&cli.StringFlag{
						Name:  runFlagPCDFormat,
						Value: "binary",
						Usage: "encoding of a .pcd output (ascii or binary)",
					},
				},
				Action: RunAction,
			},
			{
				Name:  "info",
				Usage: "print a summary of a point cloud",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     infoFlagInput,
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "read the cloud from `FILE` (.pcd or .las)",
					},
					&cli.IntFlag{
						Name:  infoFlagK,
						Value: 6,
						Usage: "neighbors used for the average spacing",
					},
				},
				Action: InfoAction,
			},
			{
				Name:   "steps",
				Usage:  "list the step types a config can use",
				Action: StepsAction,
			},
		},
	}
}
