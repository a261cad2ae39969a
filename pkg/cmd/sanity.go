package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/spyroot/benchctl/pkg/sanity"
)

// SanityCommand is the specification of the `sanity` command: walk the
// results tree, report integrity, and optionally purge.
var SanityCommand = cli.Command{
	Name:   "sanity",
	Usage:  "walk the results tree and report (or purge) incomplete experiments",
	Action: sanityCommand,
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "purge", Usage: "remove every experiment directory that fails validation"},
	},
}

func sanityCommand(c *cli.Context) error {
	env, err := loadEnv(c)
	if err != nil {
		return err
	}
	resultsDir := env.ResultsDir
	if resultsDir == "" {
		return fmt.Errorf("no results directory configured")
	}

	ow, closeOW := newOutputWriter(env, "sanity")
	defer closeOW()

	reports, err := sanity.Walk(resultsDir, ow)
	if err != nil {
		return err
	}

	valid, invalid := 0, 0
	for _, r := range reports {
		if r.Valid() {
			valid++
			continue
		}
		invalid++
		fmt.Printf("INVALID %s\n", r.Dir)
		for _, p := range r.Pairs {
			if p.Valid {
				continue
			}
			for _, reason := range p.Reasons {
				fmt.Printf("  %s: %s\n", p.Dir, reason)
			}
		}
	}
	fmt.Printf("%d valid, %d invalid experiment(s)\n", valid, invalid)

	if c.Bool("purge") {
		return sanity.Purge(reports, ow)
	}
	return nil
}
