// Package main is the entry point for metricd, the pluggable metrics
// collection agent. It loads configuration, builds the configured
// collectors and either runs them on their intervals or runs one pass.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "metricd: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "metricd",
		Usage:   "pluggable metrics collection agent",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the agent configuration file",
				EnvVars: []string{"METRICD_CONFIG"},
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			&runCommand,
			&collectCommand,
			&listCommand,
			&initCommand,
		},
	}
}
