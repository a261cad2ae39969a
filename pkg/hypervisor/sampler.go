// Package hypervisor implements the Hypervisor Sampler: for each
// unique hypervisor in a run's HypervisorMap, periodically reads
// per-virtual-function counters over a remote shell and streams rows to a
// per-hypervisor CSV.
package hypervisor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
	"github.com/spyroot/benchctl/pkg/sshpool"
)

// Sampler drives one hypervisor's sampling task.
type Sampler struct {
	Pool    *sshpool.Pool
	Host    string
	NICName string
}

// New returns a Sampler bound to a pooled remote-shell connection.
func New(pool *sshpool.Pool, host, nicName string) *Sampler {
	return &Sampler{Pool: pool, Host: host, NICName: nicName}
}

// Run enumerates active virtual-function identifiers once, then samples
// every interval for duration+grace, appending rows to w. A failed per-VF
// sample is logged and skipped, and context cancellation ends the loop with
// a nil return; it only returns an error when opening the pooled session or
// the initial VF enumeration fails outright.
func (s *Sampler) Run(ctx context.Context, ow *rpc.OutputWriter, w io.Writer, interval, duration, grace time.Duration) error {
	sess, err := s.Pool.Get(ctx, s.Host)
	if err != nil {
		return fmt.Errorf("failed to open hypervisor session for %s: %w", s.Host, err)
	}

	vfIDs, err := s.enumerateVFs(ctx, sess)
	if err != nil {
		return fmt.Errorf("failed to enumerate virtual functions on %s: %w", s.Host, err)
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()

	deadline := time.Now().Add(duration + grace)
	headerWritten := false

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}

		for _, vf := range vfIDs {
			sample, err := s.sampleVF(ctx, sess, vf)
			if err != nil {
				ow.Warnw("hypervisor sample failed", "host", s.Host, "vf", vf, "error", err)
				continue
			}

			if !headerWritten {
				if err := writeHeader(cw, sample); err != nil {
					ow.Warnw("failed to write hypervisor csv header", "host", s.Host, "error", err)
					continue
				}
				headerWritten = true
			}
			if err := writeRow(cw, sample); err != nil {
				ow.Warnw("failed to write hypervisor csv row", "host", s.Host, "error", err)
			}
			cw.Flush()
		}
	}

	return nil
}

func (s *Sampler) enumerateVFs(ctx context.Context, sess api.ShellSession) ([]string, error) {
	out, err := sess.Run(ctx, "esxcli network sriovnic vf list -n "+s.NICName)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "VF ID") {
			continue
		}
		ids = append(ids, strings.Fields(line)[0])
	}
	return ids, nil
}

func (s *Sampler) sampleVF(ctx context.Context, sess api.ShellSession, vfID string) (api.HypervisorSample, error) {
	out, err := sess.Run(ctx, "esxcli network sriovnic vf stats -n "+s.NICName+" -v "+vfID)
	if err != nil {
		return api.HypervisorSample{}, fmt.Errorf("%w: %v", api.ErrSamplerRemote, err)
	}

	counters := make(map[string]int64)
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		counters[key] = n
	}

	return api.HypervisorSample{
		Timestamp: time.Now().UTC(),
		VFID:      vfID,
		NICName:   s.NICName,
		ESXiHost:  s.Host,
		Counters:  counters,
	}, nil
}

func writeHeader(cw *csv.Writer, sample api.HypervisorSample) error {
	keys := sortedKeys(sample.Counters)
	header := append([]string{"timestamp", "vf_id", "nic_name", "esxi_host"}, keys...)
	return cw.Write(header)
}

func writeRow(cw *csv.Writer, sample api.HypervisorSample) error {
	keys := sortedKeys(sample.Counters)
	row := []string{
		sample.Timestamp.Format(time.RFC3339),
		sample.VFID,
		sample.NICName,
		sample.ESXiHost,
	}
	for _, k := range keys {
		row = append(row, strconv.FormatInt(sample.Counters[k], 10))
	}
	return cw.Write(row)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
