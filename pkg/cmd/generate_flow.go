package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli"

	"github.com/spyroot/benchctl/pkg/profile"
)

// GenerateFlowCommand is the specification of the `generate_flow` command
//: expand a sweep spec into a set of named profile files.
var GenerateFlowCommand = cli.Command{
	Name:      "generate_flow",
	Usage:     "expand a flow sweep into generator profile files",
	ArgsUsage: "--sweep <file>.toml --output <dir>",
	Action:    generateFlowCommand,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:     "sweep",
			Usage:    "path to a sweep spec TOML file (flows, pkt_sizes, rates, modes)",
			Required: true,
		},
		cli.StringFlag{
			Name:  "output",
			Usage: "directory to write generated profile files into",
			Value: ".",
		},
	},
}

func generateFlowCommand(c *cli.Context) error {
	var spec profile.SweepSpec
	if _, err := toml.DecodeFile(c.String("sweep"), &spec); err != nil {
		return fmt.Errorf("failed to parse sweep spec %s: %w", c.String("sweep"), err)
	}

	filenames, err := profile.ExpandSweep(spec)
	if err != nil {
		return err
	}

	outDir := c.String("output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	templater := profile.LiteralTemplater{}
	written := 0
	for i, name := range filenames {
		prof, err := profile.ParseFilename(name)
		if err != nil {
			return err
		}
		renderedName, content, err := templater.Render(prof.NumFlows, prof.PktSize, prof.PercentRate, prof.FlowMode)
		if err != nil {
			return fmt.Errorf("failed to render profile %d/%d: %w", i+1, len(filenames), err)
		}
		if err := os.WriteFile(filepath.Join(outDir, renderedName), content, 0o644); err != nil {
			return fmt.Errorf("failed to write profile %s: %w", renderedName, err)
		}
		written++
	}

	fmt.Printf("wrote %d profile(s) to %s\n", written, outDir)
	return nil
}
