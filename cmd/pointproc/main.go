// Package main is the pointproc command itself.
package main

import (
	"fmt"
	"os"

	"go.viam.com/pointproc/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
