package receiver

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// fakeCluster is a minimal api.ClusterClient stand-in scoped to what the
// Receiver Driver calls.
type fakeCluster struct {
	execResult    api.ExecResult
	execErr       error
	running       bool
	runningErr    error
	fileContent   []byte
	fileErr       error
	killErr       error
	blockStream   bool
}

var _ api.ClusterClient = (*fakeCluster)(nil)

func (f *fakeCluster) ListWorkloads(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeCluster) Exec(ctx context.Context, pod, container string, argv []string, stdin io.Reader) (api.ExecResult, error) {
	return f.execResult, f.execErr
}

func (f *fakeCluster) ExecStream(ctx context.Context, pod, container string, argv []string, stdout io.Writer) error {
	if f.blockStream {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.execErr
}

func (f *fakeCluster) CopyTo(ctx context.Context, pod, container, localPath, remotePath string) error {
	return nil
}

func (f *fakeCluster) NodeLabel(ctx context.Context, node, key string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeCluster) PodNode(ctx context.Context, pod string) (string, error) { return "", nil }

func (f *fakeCluster) AllowedCPUs(ctx context.Context, pod, container string) ([]int, error) {
	return nil, nil
}

func (f *fakeCluster) ProcessRunning(ctx context.Context, pod, container, nameSubstr string) (bool, error) {
	return f.running, f.runningErr
}

func (f *fakeCluster) KillProcess(ctx context.Context, pod, container, nameSubstr, signal string) error {
	return f.killErr
}

func (f *fakeCluster) Logs(ctx context.Context, pod, container string, tailLines int64) (string, error) {
	return "", nil
}

func (f *fakeCluster) ReadFile(ctx context.Context, pod, container, path string) ([]byte, error) {
	return f.fileContent, f.fileErr
}

func (f *fakeCluster) Close() error { return nil }

func TestAssignCoresUsesFirstCoreAsMainAndRestByDefault(t *testing.T) {
	d := New(&fakeCluster{}, api.Workload{Name: "rx0", Cores: []int{3, 4, 5}})
	assign, err := d.AssignCores(0)
	assert.NoError(t, err)
	assert.Equal(t, 3, assign.Main)
	assert.Equal(t, []int{4, 5}, assign.RXCores)
}

func TestAssignCoresHonorsExplicitOverride(t *testing.T) {
	d := New(&fakeCluster{}, api.Workload{Name: "rx0", Cores: []int{3, 4, 5, 6}})
	assign, err := d.AssignCores(2)
	assert.NoError(t, err)
	assert.Equal(t, []int{4, 5}, assign.RXCores)
}

func TestAssignCoresRejectsTooFewCores(t *testing.T) {
	d := New(&fakeCluster{}, api.Workload{Name: "rx0", Cores: []int{3}})
	_, err := d.AssignCores(0)
	assert.ErrorIs(t, err, api.ErrInsufficientCores)
}

func TestWarmupTreatsTimeoutExitAsSuccess(t *testing.T) {
	fc := &fakeCluster{execResult: api.ExecResult{ExitCode: 124}}
	d := New(fc, api.Workload{Name: "rx0", Cores: []int{3, 4}})
	_, _ = d.AssignCores(0)
	err := d.Warmup(context.Background(), rpc.Discard(), "aa:bb", time.Second)
	assert.NoError(t, err)
	assert.Equal(t, WarmDone, d.State())
}

func TestWarmupCapturesCombinedOutput(t *testing.T) {
	fc := &fakeCluster{execResult: api.ExecResult{ExitCode: 124, Stdout: []byte("out\n"), Stderr: []byte("err\n")}}
	d := New(fc, api.Workload{Name: "rx0", Cores: []int{3, 4}})
	_, _ = d.AssignCores(0)
	assert.NoError(t, d.Warmup(context.Background(), rpc.Discard(), "aa:bb", time.Second))
	assert.Equal(t, "out\nerr\n", string(d.WarmupLog()))
}

func TestWarmupReportsUnexpectedExitCode(t *testing.T) {
	fc := &fakeCluster{execResult: api.ExecResult{ExitCode: 1}}
	d := New(fc, api.Workload{Name: "rx0", Cores: []int{3, 4}})
	_, _ = d.AssignCores(0)
	err := d.Warmup(context.Background(), rpc.Discard(), "aa:bb", time.Second)
	assert.ErrorIs(t, err, api.ErrWarmupFailed)
}

func TestStartSucceedsWhenProcessLiveAndLogNonEmpty(t *testing.T) {
	fc := &fakeCluster{blockStream: true, running: true, fileContent: []byte("ok\n")}
	d := New(fc, api.Workload{Name: "rx0", Cores: []int{3, 4}})
	_, _ = d.AssignCores(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := d.Start(ctx, rpc.Discard(), time.Second, 1)
	assert.NoError(t, err)
	assert.Equal(t, Running, d.State())
}

func TestStartFailsWhenStatLogEmpty(t *testing.T) {
	fc := &fakeCluster{blockStream: true, running: true, fileContent: nil}
	d := New(fc, api.Workload{Name: "rx0", Cores: []int{3, 4}})
	_, _ = d.AssignCores(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := d.Start(ctx, rpc.Discard(), time.Second, 1)
	assert.ErrorIs(t, err, api.ErrReceiverNotLive)
	assert.Equal(t, Failed, d.State())
}

func TestStopKillsForwarderProcess(t *testing.T) {
	d := New(&fakeCluster{}, api.Workload{Name: "rx0", Cores: []int{3, 4}})
	_, _ = d.AssignCores(0)
	assert.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, Stopped, d.State())
}
