package sanity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/rpc"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		assert.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func TestCheckPairDirFlagsMissingRequiredFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "metadata.txt")

	r := checkPairDir(dir)
	assert.False(t, r.Valid)
	assert.Contains(t, r.Reasons, "missing file with suffix _warmup.log")
}

func TestCheckPairDirFlagsWrongArchiveCount(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"metadata.txt",
		"prefix_warmup.log",
		"prefix_stats.log",
		"prefix_port_rate_stats.csv",
		"prefix_port_stats.csv",
		"deadbeef_tx0_tx_txcores_1_rxcores_2_spec_p_20260101_000000.npz",
		"deadbeef_tx0_tx_txcores_1_rxcores_2_spec_p_20260101_000001.npz",
	)

	r := checkPairDir(dir)
	assert.False(t, r.Valid)
	found := false
	for _, reason := range r.Reasons {
		if reason == "expected exactly one tx archive, found 2" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckPairDirAcceptsRequiredFilesButFlagsMissingArchives(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"metadata.txt",
		"prefix_warmup.log",
		"prefix_stats.log",
		"prefix_port_rate_stats.csv",
		"prefix_port_stats.csv",
	)
	// No archives present at all: exactly-one-per-side still fails, but the
	// required-suffix set itself should be satisfied.
	r := checkPairDir(dir)
	assert.NotContains(t, r.Reasons, "missing file with suffix _warmup.log")
	assert.Contains(t, r.Reasons, "expected exactly one tx archive, found 0")
}

func TestWalkAggregatesPairsAcrossExperimentTree(t *testing.T) {
	root := t.TempDir()
	pairDir := filepath.Join(root, "deadbeef", "tx0-rx0", "profile_p")
	writeFiles(t, pairDir, "metadata.txt")

	reports, err := Walk(root, rpc.Discard())
	assert.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Len(t, reports[0].Pairs, 1)
	assert.False(t, reports[0].Valid())
}

func TestPurgeRemovesOnlyInvalidExperimentDirectories(t *testing.T) {
	root := t.TempDir()
	invalidDir := filepath.Join(root, "bad-exp")
	writeFiles(t, invalidDir, "metadata.txt")

	reports := []ExperimentReport{
		{Dir: invalidDir, Pairs: []PairReport{{Dir: invalidDir, Valid: false, Reasons: []string{"bad"}}}},
	}

	assert.NoError(t, Purge(reports, rpc.Discard()))
	_, err := os.Stat(invalidDir)
	assert.True(t, os.IsNotExist(err))
}
