// Package artifact implements the Artifact Layout Writer: the
// canonical per-Pair directory tree, metadata.txt, and archive filename
// grammar.
package artifact

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spyroot/benchctl/pkg/api"
)

// Dir returns the canonical artifact directory for one Pair under one
// profile.
func Dir(resultsDir, experimentID string, pair api.Pair, profileBasename string) string {
	return filepath.Join(resultsDir, experimentID, pair.Name(), profileBasename)
}

// EnsureDir creates a Pair's artifact directory tree.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return nil
}

// ArchiveFilename renders the §4.8 archive filename grammar:
//
//	<ExperimentID>_<podname>_(tx|rx)_txcores_<txcores>_rxcores_<rxcores>_spec_<profile-basename>_<YYYYMMDD_HHMMSS>.npz
func ArchiveFilename(experimentID, podName, side string, cores api.CoreAssignment, profileBasename string, ts time.Time) string {
	return fmt.Sprintf(
		"%s_%s_%s_txcores_%s_rxcores_%s_spec_%s_%s.npz",
		experimentID, podName, side,
		intList(cores.TXCores), intList(cores.RXCores),
		profileBasename, ts.UTC().Format("20060102_150405"),
	)
}

func intList(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, "-")
}

// The four raw per-Pair files §4.8 requires alongside metadata.txt and the
// two .npz archives, all named off the tx pod regardless of which side
// produced them.
func WarmupLogFilename(txPod string) string     { return txPod + "_warmup.log" }
func StatsLogFilename(txPod string) string      { return txPod + "_stats.log" }
func PortRateStatsFilename(txPod string) string { return txPod + "_port_rate_stats.csv" }
func PortStatsFilename(txPod string) string     { return txPod + "_port_stats.csv" }

// WriteRaw writes content verbatim to name under dir. A nil/empty content is
// a no-op: the warm-up log "may be absent" per §4.8.
func WriteRaw(dir, name string, content []byte) error {
	if len(content) == 0 {
		return nil
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Metadata is the set of required and optional metadata.txt keys.
type Metadata struct {
	ExpID     string
	Timestamp time.Time
	Profile   string
	TXPod     string
	RXPod     string
	TXNode    string
	RXNode    string
	TXMAC     string
	RXMAC     string
	TXNuma    string
	RXNuma    string
	TXESXi    string
	RXESXi    string
	TXCmdline string
	RXCmdline string
	Options   map[string]string
}

// WriteMetadata writes metadata.txt: ASCII, one key=value per line.
func WriteMetadata(dir string, m Metadata) error {
	f, err := os.Create(filepath.Join(dir, "metadata.txt"))
	if err != nil {
		return fmt.Errorf("failed to create metadata.txt: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	required := []struct{ k, v string }{
		{"expid", m.ExpID},
		{"timestamp", m.Timestamp.UTC().Format(time.RFC3339)},
		{"profile", m.Profile},
		{"tx_pod", m.TXPod},
		{"rx_pod", m.RXPod},
		{"tx_node", m.TXNode},
		{"rx_node", m.RXNode},
		{"tx_mac", m.TXMAC},
		{"rx_mac", m.RXMAC},
		{"tx_numa", m.TXNuma},
		{"rx_numa", m.RXNuma},
	}
	for _, kv := range required {
		if _, err := fmt.Fprintf(w, "%s=%s\n", kv.k, kv.v); err != nil {
			return err
		}
	}

	optional := []struct{ k, v string }{
		{"tx_esxi", m.TXESXi},
		{"rx_esxi", m.RXESXi},
		{"tx_cmdline", m.TXCmdline},
		{"rx_cmdline", m.RXCmdline},
	}
	for _, kv := range optional {
		if kv.v == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", kv.k, kv.v); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(m.Options))
	for k := range m.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, m.Options[k]); err != nil {
			return err
		}
	}

	return nil
}

// ReadMetadata parses a metadata.txt file back into a key/value map,
// ignoring blank and "#"-prefixed lines.
func ReadMetadata(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		out[line[:idx]] = line[idx+1:]
	}
	return out, sc.Err()
}

const mainContainer = "main"

// CollectKernelCmdline reads /proc/cmdline from inside a workload's host
// node once per Experiment, grounded on the same remote-exec
// primitive the Topology Resolver uses for probing.
func CollectKernelCmdline(ctx context.Context, cluster api.ClusterClient, pod string) (string, error) {
	res, err := cluster.Exec(ctx, pod, mainContainer, []string{"cat", "/proc/cmdline"}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read kernel cmdline via %s: %w", pod, err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}
