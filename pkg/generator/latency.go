package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// latencyLossThreshold is the fractional packet loss above which a probed
// rate is judged non-convergent.
const latencyLossThreshold = 0.001

// maxLatencyProbes bounds the binary search so a misbehaving generator
// cannot hang the Experiment indefinitely.
const maxLatencyProbes = 16

// LatencySearch is a convergence-style rate search: a bounded binary search
// over the offered rate (1-100%), issuing one probeRate call per round and
// keeping the highest rate whose loss stays at or below
// latencyLossThreshold, until the range is exhausted or maxLatencyProbes
// rounds have run. It returns the number of probes performed and that best
// rate. Driver.Run does not call it, so the --latency flag does not trigger
// a rate search, and no latency_probes key is written to metadata.txt.
func (d *Driver) LatencySearch(ctx context.Context, ow *rpc.OutputWriter) (probesRun int, finalRate int, err error) {
	lo, hi := 1, 100
	probes := 0
	best := 0

	for probes < maxLatencyProbes && lo <= hi {
		select {
		case <-ctx.Done():
			return probes, best, ctx.Err()
		default:
		}

		mid := (lo + hi) / 2
		loss, err := d.probeRate(ctx, mid)
		if err != nil {
			return probes, best, fmt.Errorf("latency probe at rate %d%% failed: %w", mid, err)
		}
		probes++

		ow.Debugw("latency probe", "workload", d.Workload.Name, "rate_pct", mid, "loss", loss, "probe", probes)

		if loss <= latencyLossThreshold {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	return probes, best, nil
}

// probeRate sets the offered rate and reads back the loss fraction reported
// by the generator's rate-probe helper, an opaque external artifact;
// benchctl only parses its "loss=<float>" stdout line.
func (d *Driver) probeRate(ctx context.Context, ratePct int) (float64, error) {
	argv := []string{
		"testpmd-ctl", "--port", strconv.Itoa(d.Opts.ControlPort),
		"--rate-probe", strconv.Itoa(ratePct),
	}
	res, err := d.Cluster.Exec(ctx, d.Workload.Name, mainContainer, argv, nil)
	if err != nil {
		return 0, err
	}
	if res.ExitCode == connRefusedExit {
		return 0, api.ErrGeneratorGone
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("%w: rate probe exited %d", api.ErrGeneratorGone, res.ExitCode)
	}

	for _, line := range strings.Split(string(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "loss=") {
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, "loss="), 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse loss line %q: %w", line, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("rate probe produced no loss= line")
}
