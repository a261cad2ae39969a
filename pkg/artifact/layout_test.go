package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
)

func TestDirBuildsCanonicalPath(t *testing.T) {
	pair := api.Pair{TX: api.Workload{Name: "tx0"}, RX: api.Workload{Name: "rx0"}}
	dir := Dir("/results", "deadbeef", pair, "profile_8_flows_pkt_size_64B_100_rate_s")
	assert.Equal(t, filepath.Join("/results", "deadbeef", "tx0-rx0", "profile_8_flows_pkt_size_64B_100_rate_s"), dir)
}

func TestArchiveFilenameMatchesGrammar(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	name := ArchiveFilename("deadbeef", "tx0", "tx", api.CoreAssignment{TXCores: []int{1, 2}, RXCores: []int{3}}, "profile_8_flows_pkt_size_64B_100_rate_s", ts)
	assert.Equal(t, "deadbeef_tx0_tx_txcores_1-2_rxcores_3_spec_profile_8_flows_pkt_size_64B_100_rate_s_20260102_030405.npz", name)
}

func TestWriteAndReadMetadataRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := Metadata{
		ExpID:     "deadbeef",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Profile:   "profile_8_flows_pkt_size_64B_100_rate_s",
		TXPod:     "tx0",
		RXPod:     "rx0",
		TXNode:    "node-a",
		RXNode:    "node-b",
		TXMAC:     "aa:bb",
		RXMAC:     "cc:dd",
		TXNuma:    "0",
		RXNuma:    "1",
		Options:   map[string]string{"duration": "30"},
	}

	assert.NoError(t, WriteMetadata(dir, m))

	kv, err := ReadMetadata(filepath.Join(dir, "metadata.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "deadbeef", kv["expid"])
	assert.Equal(t, "tx0", kv["tx_pod"])
	assert.Equal(t, "30", kv["duration"])
	assert.NotContains(t, kv, "tx_esxi")
}

func TestWriteMetadataOmitsEmptyOptionalFields(t *testing.T) {
	dir := t.TempDir()
	m := Metadata{ExpID: "deadbeef", TXPod: "tx0", RXPod: "rx0"}
	assert.NoError(t, WriteMetadata(dir, m))

	kv, err := ReadMetadata(filepath.Join(dir, "metadata.txt"))
	assert.NoError(t, err)
	_, hasCmdline := kv["tx_cmdline"]
	assert.False(t, hasCmdline)
}

func TestRawArtifactFilenames(t *testing.T) {
	assert.Equal(t, "tx0_warmup.log", WarmupLogFilename("tx0"))
	assert.Equal(t, "tx0_stats.log", StatsLogFilename("tx0"))
	assert.Equal(t, "tx0_port_rate_stats.csv", PortRateStatsFilename("tx0"))
	assert.Equal(t, "tx0_port_stats.csv", PortStatsFilename("tx0"))
}

func TestWriteRawSkipsEmptyContent(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, WriteRaw(dir, "tx0_warmup.log", nil))
	_, err := ReadMetadata(filepath.Join(dir, "tx0_warmup.log"))
	assert.Error(t, err)
}

func TestWriteRawWritesVerbatimContent(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, WriteRaw(dir, "tx0_stats.log", []byte("line one\nline two\n")))

	got, err := os.ReadFile(filepath.Join(dir, "tx0_stats.log"))
	assert.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(got))
}
