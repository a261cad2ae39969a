// Command benchctl drives distributed packet-generator benchmarks against a
// Kubernetes cluster: it is the CLI entrypoint wiring the verb set in
// pkg/cmd onto urfave/cli, the same framework and app-setup shape the
// teacher's testground binary uses.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap/zapcore"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/cmd"
	"github.com/spyroot/benchctl/pkg/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "benchctl"
	app.Usage = "distributed packet-generator benchmark orchestrator"
	app.Commands = cmd.Commands
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "namespace", Usage: "override the configured cluster namespace"},
		cli.StringFlag{Name: "results-dir", Usage: "override the configured results directory"},
		cli.StringFlag{Name: "kubeconfig", Usage: "override the configured kubeconfig path"},
		cli.BoolFlag{Name: "v", Usage: "verbose logging"},
	}
	app.Before = func(c *cli.Context) error {
		configureLogging(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a verb's returned error onto the §6 exit-code table.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, api.ErrAbort):
		return 130
	case errors.Is(err, api.ErrTopologyMismatch), errors.Is(err, api.ErrProbeConflict):
		return 2
	case errors.Is(err, api.ErrValidation):
		return 1
	default:
		return 1
	}
}

func configureLogging(c *cli.Context) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			panic(err)
		}
		logging.SetLevel(l)
		return
	}
	if c.Bool("v") {
		logging.SetLevel(zapcore.DebugLevel)
	}
}
