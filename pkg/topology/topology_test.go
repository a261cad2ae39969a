package topology

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// fakeCluster is a minimal in-memory api.ClusterClient stand-in, grounded on
// the same dependency-injected collaborator shape pkg/api.ClusterClient
// formalizes: tests never talk to a real Kubernetes cluster.
type fakeCluster struct {
	workloads   []string
	macs        map[string]string
	cores       map[string][]int
	nodes       map[string]string
	nodeLabels  map[string]map[string]string
	running     map[string]bool
}

var _ api.ClusterClient = (*fakeCluster)(nil)

func (f *fakeCluster) ListWorkloads(ctx context.Context) ([]string, error) { return f.workloads, nil }

func (f *fakeCluster) Exec(ctx context.Context, pod, container string, argv []string, stdin io.Reader) (api.ExecResult, error) {
	if len(argv) > 0 && argv[0] == "testpmd-probe" {
		return api.ExecResult{Stdout: []byte(f.macs[pod])}, nil
	}
	return api.ExecResult{}, nil
}

func (f *fakeCluster) ExecStream(ctx context.Context, pod, container string, argv []string, stdout io.Writer) error {
	return nil
}

func (f *fakeCluster) CopyTo(ctx context.Context, pod, container, localPath, remotePath string) error {
	return nil
}

func (f *fakeCluster) NodeLabel(ctx context.Context, node, key string) (string, bool, error) {
	v, ok := f.nodeLabels[node][key]
	return v, ok, nil
}

func (f *fakeCluster) PodNode(ctx context.Context, pod string) (string, error) { return f.nodes[pod], nil }

func (f *fakeCluster) AllowedCPUs(ctx context.Context, pod, container string) ([]int, error) {
	return f.cores[pod], nil
}

func (f *fakeCluster) ProcessRunning(ctx context.Context, pod, container, nameSubstr string) (bool, error) {
	return f.running[pod], nil
}

func (f *fakeCluster) KillProcess(ctx context.Context, pod, container, nameSubstr, signal string) error {
	return nil
}

func (f *fakeCluster) Logs(ctx context.Context, pod, container string, tailLines int64) (string, error) {
	return "", nil
}

func (f *fakeCluster) ReadFile(ctx context.Context, pod, container, path string) ([]byte, error) {
	return nil, nil
}

func (f *fakeCluster) Close() error { return nil }

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		workloads:  []string{"tx0", "rx0", "tx1", "rx1"},
		macs:       map[string]string{"tx0": "aa:aa", "rx0": "bb:bb", "tx1": "cc:cc", "rx1": "dd:dd"},
		cores:      map[string][]int{"tx0": {0, 1, 2}, "rx0": {3, 4}, "tx1": {5, 6, 7}, "rx1": {8, 9}},
		nodes:      map[string]string{"tx0": "node-a", "rx0": "node-a", "tx1": "node-b", "rx1": "node-b"},
		nodeLabels: map[string]map[string]string{"node-a": {"benchctl.io/hypervisor": "hv-1"}},
		running:    map[string]bool{},
	}
}

func TestResolvePairsTXAndRXBySortedIndex(t *testing.T) {
	r := New(newFakeCluster())
	pairs, hvMap, err := r.Resolve(context.Background(), rpc.Discard())
	assert.NoError(t, err)
	assert.Len(t, pairs, 2)
	assert.Equal(t, "tx0", pairs[0].TX.Name)
	assert.Equal(t, "rx0", pairs[0].RX.Name)
	assert.Equal(t, "hv-1", hvMap["node-a"])
	assert.NotContains(t, hvMap, "node-b")
	assert.Equal(t, "hv-1", pairs[0].TX.Hypervisor)
	assert.Equal(t, "hv-1", pairs[0].RX.Hypervisor)
	assert.Equal(t, "", pairs[1].TX.Hypervisor)
}

func TestResolveRejectsMismatchedTXRXCounts(t *testing.T) {
	c := newFakeCluster()
	c.workloads = []string{"tx0", "rx0", "tx1"}
	r := New(c)
	_, _, err := r.Resolve(context.Background(), rpc.Discard())
	assert.ErrorIs(t, err, api.ErrTopologyMismatch)
}

func TestResolveRejectsNoWorkloadsFound(t *testing.T) {
	c := newFakeCluster()
	c.workloads = nil
	r := New(c)
	_, _, err := r.Resolve(context.Background(), rpc.Discard())
	assert.ErrorIs(t, err, api.ErrTopologyMismatch)
}

func TestResolveRejectsWhenGeneratorAlreadyRunning(t *testing.T) {
	c := newFakeCluster()
	c.running["tx0"] = true
	r := New(c)
	_, _, err := r.Resolve(context.Background(), rpc.Discard())
	assert.ErrorIs(t, err, api.ErrProbeConflict)
}
