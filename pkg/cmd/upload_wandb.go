package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"

	"github.com/spyroot/benchctl/pkg/wandb"
)

// UploadWandbCommand is the specification of the `upload_wandb` command
//: push every archive under an experiment directory (or the whole
// results tree) to a metrics sink.
var UploadWandbCommand = cli.Command{
	Name:      "upload_wandb",
	Usage:     "forward archive counters to a metrics sink",
	ArgsUsage: "--gateway <url> [--experiment-id <id>]",
	Action:    uploadWandbCommand,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "gateway", Usage: "push-gateway URL", Required: true},
		cli.StringFlag{Name: "job", Usage: "push-gateway job name", Value: "benchctl"},
		cli.StringFlag{Name: "experiment-id", Usage: "restrict the push to one experiment ID"},
	},
}

func uploadWandbCommand(c *cli.Context) error {
	env, err := loadEnv(c)
	if err != nil {
		return err
	}
	resultsDir := env.ResultsDir
	if resultsDir == "" {
		return fmt.Errorf("no results directory configured")
	}

	root := resultsDir
	if expID := c.String("experiment-id"); expID != "" {
		root = filepath.Join(resultsDir, expID)
	}

	ow, closeOW := newOutputWriter(env, "upload_wandb")
	defer closeOW()

	sink := wandb.New(c.String("gateway"), c.String("job"))

	pushed := 0
	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || !strings.HasSuffix(path, ".npz") {
			return nil
		}
		expID, pod, side := archiveMeta(resultsDir, path)
		if err := sink.PushArchive(ow, path, expID, pod, side); err != nil {
			ow.Warnw("failed to push archive", "path", path, "error", err)
			return nil
		}
		pushed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}

	fmt.Printf("pushed %d archive(s)\n", pushed)
	return nil
}

// archiveMeta derives the experiment ID (from the directory tree laid out by
// artifact.Dir), pod name, and side (tx/rx) for one archive path, following
// the archive filename grammar:
// "<ExperimentID>_<podname>_(tx|rx)_txcores_..._rxcores_..._spec_..._<ts>.npz".
func archiveMeta(resultsDir, path string) (expID, pod, side string) {
	rel, err := filepath.Rel(resultsDir, path)
	if err == nil {
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) > 0 {
			expID = parts[0]
		}
	}

	side = "tx"
	name := filepath.Base(path)
	marker := "_tx_"
	if strings.Contains(name, "_rx_") {
		side = "rx"
		marker = "_rx_"
	}
	if idx := strings.Index(name, marker); idx > 0 {
		prefix := name[:idx]
		if expID != "" && strings.HasPrefix(prefix, expID+"_") {
			pod = strings.TrimPrefix(prefix, expID+"_")
		} else {
			pod = prefix
		}
	}
	return expID, pod, side
}
