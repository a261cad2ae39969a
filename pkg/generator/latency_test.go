package generator

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// convergingCluster reports zero loss for rates at or below its threshold and
// full loss above it, letting LatencySearch's binary search converge on a
// known rate.
type convergingCluster struct {
	fakeCluster
	threshold int
}

func (f *convergingCluster) Exec(ctx context.Context, pod, container string, argv []string, stdin io.Reader) (api.ExecResult, error) {
	rate := argv[len(argv)-1]
	var mid int
	_, _ = fmt.Sscanf(rate, "%d", &mid)
	if mid <= f.threshold {
		return api.ExecResult{Stdout: []byte("loss=0.0000\n")}, nil
	}
	return api.ExecResult{Stdout: []byte("loss=0.5000\n")}, nil
}

func TestLatencySearchConvergesOnThresholdRate(t *testing.T) {
	fc := &convergingCluster{threshold: 42}
	d := newDriver(&fc.fakeCluster, true)
	d.Cluster = fc

	probes, best, err := d.LatencySearch(context.Background(), rpc.Discard())
	assert.NoError(t, err)
	assert.Equal(t, 42, best)
	assert.Greater(t, probes, 0)
	assert.LessOrEqual(t, probes, maxLatencyProbes)
}

func TestProbeRateParsesLossLine(t *testing.T) {
	fc := &fakeCluster{execResult: api.ExecResult{Stdout: []byte("loss=0.0123\n")}}
	d := newDriver(fc, false)

	loss, err := d.probeRate(context.Background(), 50)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0123, loss, 0.00001)
}

func TestProbeRateReportsGeneratorGoneOnConnRefused(t *testing.T) {
	fc := &fakeCluster{execResult: api.ExecResult{ExitCode: connRefusedExit}}
	d := newDriver(fc, false)

	_, err := d.probeRate(context.Background(), 50)
	assert.ErrorIs(t, err, api.ErrGeneratorGone)
}

func TestProbeRateFailsWhenNoLossLinePresent(t *testing.T) {
	fc := &fakeCluster{execResult: api.ExecResult{Stdout: []byte("nothing useful\n")}}
	d := newDriver(fc, false)

	_, err := d.probeRate(context.Background(), 50)
	assert.Error(t, err)
}
