// Package sanity implements the `sanity` verb: walk the results tree,
// report per-Experiment integrity against the artifact directory schema,
// and optionally purge invalid Experiments.
package sanity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spyroot/benchctl/pkg/npz"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// requiredSuffixes are the five non-archive files an intact Pair directory
// must contain, matched by suffix since the tx/profile-derived
// prefix varies per Pair. The two .npz archives that complete the seven
// files are checked separately (exactly one per side).
var requiredSuffixes = []string{
	"metadata.txt",
	"_warmup.log",
	"_stats.log",
	"_port_rate_stats.csv",
	"_port_stats.csv",
}

// PairReport is the integrity result for one Pair directory.
type PairReport struct {
	Dir     string
	Valid   bool
	Reasons []string
}

// ExperimentReport aggregates every Pair under one Experiment directory.
type ExperimentReport struct {
	Dir   string
	Pairs []PairReport
}

// Valid reports whether every Pair under this Experiment passed.
func (r ExperimentReport) Valid() bool {
	for _, p := range r.Pairs {
		if !p.Valid {
			return false
		}
	}
	return len(r.Pairs) > 0
}

// Walk scans resultsDir for Experiment directories (one level of ExperimentID,
// one level of Pair, one level of profile-basename) and reports integrity.
func Walk(resultsDir string, ow *rpc.OutputWriter) ([]ExperimentReport, error) {
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results dir %s: %w", resultsDir, err)
	}

	var reports []ExperimentReport
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		expDir := filepath.Join(resultsDir, e.Name())
		report, err := walkExperiment(expDir)
		if err != nil {
			ow.Warnw("failed to walk experiment directory", "dir", expDir, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func walkExperiment(expDir string) (ExperimentReport, error) {
	report := ExperimentReport{Dir: expDir}

	pairDirs, err := os.ReadDir(expDir)
	if err != nil {
		return report, err
	}

	for _, pd := range pairDirs {
		if !pd.IsDir() {
			continue
		}
		pairPath := filepath.Join(expDir, pd.Name())
		profileDirs, err := os.ReadDir(pairPath)
		if err != nil {
			continue
		}
		for _, prof := range profileDirs {
			if !prof.IsDir() {
				continue
			}
			dir := filepath.Join(pairPath, prof.Name())
			report.Pairs = append(report.Pairs, checkPairDir(dir))
		}
	}
	return report, nil
}

func checkPairDir(dir string) PairReport {
	pr := PairReport{Dir: dir, Valid: true}

	files, err := os.ReadDir(dir)
	if err != nil {
		pr.Valid = false
		pr.Reasons = append(pr.Reasons, err.Error())
		return pr
	}

	names := make([]string, 0, len(files))
	var archives []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		names = append(names, f.Name())
		if strings.HasSuffix(f.Name(), ".npz") {
			archives = append(archives, f.Name())
		}
	}

	for _, suffix := range requiredSuffixes {
		if suffix == "metadata.txt" {
			if !contains(names, "metadata.txt") {
				pr.Valid = false
				pr.Reasons = append(pr.Reasons, "missing metadata.txt")
			}
			continue
		}
		if !containsSuffix(names, suffix) {
			pr.Valid = false
			pr.Reasons = append(pr.Reasons, "missing file with suffix "+suffix)
		}
	}

	var tx, rx int
	for _, a := range archives {
		switch {
		case strings.Contains(a, "_tx_"):
			tx++
		case strings.Contains(a, "_rx_"):
			rx++
		}
	}
	if tx != 1 {
		pr.Valid = false
		pr.Reasons = append(pr.Reasons, fmt.Sprintf("expected exactly one tx archive, found %d", tx))
	}
	if rx != 1 {
		pr.Valid = false
		pr.Reasons = append(pr.Reasons, fmt.Sprintf("expected exactly one rx archive, found %d", rx))
	}

	for _, a := range archives {
		if err := validateArchive(filepath.Join(dir, a)); err != nil {
			pr.Valid = false
			pr.Reasons = append(pr.Reasons, fmt.Sprintf("%s: %v", a, err))
		}
	}

	return pr
}

func validateArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	series, err := npz.Read(f, info.Size())
	if err != nil {
		return err
	}

	required := npz.RequiredTXSeries
	if strings.Contains(path, "_rx_") {
		required = npz.RequiredRXSeries
	}
	return npz.Validate(series, required)
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsSuffix(xs []string, suffix string) bool {
	for _, x := range xs {
		if strings.HasSuffix(x, suffix) {
			return true
		}
	}
	return false
}

// Purge removes every invalid Experiment directory reported by Walk,
// leaving the tree strictly reduced to Experiments reported valid.
// Idempotent: running it again on an already-purged tree removes nothing.
func Purge(reports []ExperimentReport, ow *rpc.OutputWriter) error {
	for _, r := range reports {
		if r.Valid() {
			continue
		}
		if err := os.RemoveAll(r.Dir); err != nil {
			return fmt.Errorf("failed to purge %s: %w", r.Dir, err)
		}
		ow.Infow("purged invalid experiment", "dir", r.Dir)
	}
	return nil
}
