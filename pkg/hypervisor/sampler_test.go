package hypervisor

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
	"github.com/spyroot/benchctl/pkg/sshpool"
)

type fakeSession struct {
	vfList  string
	vfStats string
}

var _ api.ShellSession = (*fakeSession)(nil)

func (f *fakeSession) Run(ctx context.Context, cmd string) (string, error) {
	if strings.Contains(cmd, "vf list") {
		return f.vfList, nil
	}
	return f.vfStats, nil
}

func (f *fakeSession) Alive() bool { return true }
func (f *fakeSession) Close() error { return nil }

type fakeDialer struct{ sess *fakeSession }

var _ api.ShellDialer = fakeDialer{}

func (d fakeDialer) Dial(ctx context.Context, host, username, password string, ka time.Duration) (api.ShellSession, error) {
	return d.sess, nil
}

func TestEnumerateVFsSkipsHeaderAndBlankLines(t *testing.T) {
	sess := &fakeSession{vfList: "VF ID  Active  PCI\n0      true    0000:01:00.0\n\n1      true    0000:01:00.1\n"}
	s := New(sshpool.New(fakeDialer{sess: sess}, "u", "p"), "esxi-1", "vmnic0")

	ids, err := s.enumerateVFs(context.Background(), sess)
	assert.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, ids)
}

func TestSampleVFParsesColonSeparatedCounters(t *testing.T) {
	sess := &fakeSession{vfStats: "Packets Received: 100\nPackets Sent: 50\nbad line\n"}
	s := New(sshpool.New(fakeDialer{sess: sess}, "u", "p"), "esxi-1", "vmnic0")

	sample, err := s.sampleVF(context.Background(), sess, "0")
	assert.NoError(t, err)
	assert.Equal(t, "0", sample.VFID)
	assert.Equal(t, int64(100), sample.Counters["Packets Received"])
	assert.Equal(t, int64(50), sample.Counters["Packets Sent"])
}

func TestRunWritesHeaderAndRowsUntilDeadline(t *testing.T) {
	sess := &fakeSession{
		vfList:  "0      true    0000:01:00.0\n",
		vfStats: "Packets Received: 10\n",
	}
	pool := sshpool.New(fakeDialer{sess: sess}, "u", "p")
	s := New(pool, "esxi-1", "vmnic0")

	var buf bytes.Buffer
	err := s.Run(context.Background(), rpc.Discard(), &buf, 5*time.Millisecond, 10*time.Millisecond, 0)
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Packets Received")
	assert.Contains(t, out, "esxi-1")
}

func TestSortedKeysOrdersAlphabetically(t *testing.T) {
	keys := sortedKeys(map[string]int64{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
