package profile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

type fakeCluster struct {
	execCalls [][]string
	execErr   error
}

var _ api.ClusterClient = (*fakeCluster)(nil)

func (f *fakeCluster) ListWorkloads(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeCluster) Exec(ctx context.Context, pod, container string, argv []string, stdin io.Reader) (api.ExecResult, error) {
	f.execCalls = append(f.execCalls, argv)
	return api.ExecResult{}, f.execErr
}

func (f *fakeCluster) ExecStream(ctx context.Context, pod, container string, argv []string, stdout io.Writer) error {
	return nil
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
	return false, nil
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

func writeProfile(t *testing.T, dir, name string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- profile"), 0o644))
}

func TestDistributeExtractsArchiveIntoEachTXWorkload(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "p1.lua")

	fc := &fakeCluster{}
	d := New(fc)

	err := d.Distribute(context.Background(), rpc.Discard(), []DistributeInput{
		{TXWorkload: "tx0", ProfileDir: dir, ProfileName: "p1.lua"},
	})
	assert.NoError(t, err)
	assert.Len(t, fc.execCalls, 1)
	assert.Equal(t, []string{"tar", "-xf", "-", "-C", "/"}, fc.execCalls[0])
}

func TestDistributeSkipsFlaggedInputs(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "p1.lua")

	fc := &fakeCluster{}
	d := New(fc)

	err := d.Distribute(context.Background(), rpc.Discard(), []DistributeInput{
		{TXWorkload: "tx0", ProfileDir: dir, ProfileName: "p1.lua", Skip: true},
	})
	assert.NoError(t, err)
	assert.Empty(t, fc.execCalls)
}

func TestDistributePropagatesExecFailure(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "p1.lua")

	fc := &fakeCluster{execErr: assert.AnError}
	d := New(fc)

	err := d.Distribute(context.Background(), rpc.Discard(), []DistributeInput{
		{TXWorkload: "tx0", ProfileDir: dir, ProfileName: "p1.lua"},
	})
	assert.Error(t, err)
}

func TestBuildArchiveRejectsNonLuaProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "p1.txt")

	_, err := buildArchive(dir, "p1.txt")
	assert.Error(t, err)
}
