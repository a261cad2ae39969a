package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/spyroot/benchctl/pkg/npz"
)

// ValidateNPZCommand is the specification of the `validate_npz` command
//: decode one archive and check its required series.
var ValidateNPZCommand = cli.Command{
	Name:      "validate_npz",
	Usage:     "validate one .npz archive against its required series",
	ArgsUsage: "<archive.npz>",
	Action:    validateNPZCommand,
}

func validateNPZCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("expected exactly one archive path", 1)
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	series, err := npz.Read(f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	required := npz.RequiredTXSeries
	if strings.Contains(path, "_rx_") {
		required = npz.RequiredRXSeries
	}

	if err := npz.Validate(series, required); err != nil {
		return fmt.Errorf("%s failed validation: %w", path, err)
	}

	fmt.Printf("%s: valid, %d series\n", path, len(series))
	return nil
}
