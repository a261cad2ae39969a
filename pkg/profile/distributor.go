package profile

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

const mainContainer = "main"

// SamplingHelperScript is the stable sampling helper pushed to every TX
// workload alongside its profile scripts.
// Its body is an opaque artifact; this is the literal content benchctl
// ships since the real templater is an external collaborator.
const SamplingHelperScript = `#!/bin/sh
# sample.sh: appends one timestamp,key=value,... row per metric family to
# the three CSV files named on argv, reading current counters from the
# control channel.
set -e
RATE_CSV="$1"; PKT_CSV="$2"; PORT_CSV="$3"
TS=$(date -u +%Y-%m-%dT%H:%M:%SZ)
echo "$TS,pkts_tx=$(testpmd-stats --rate)" >> "$RATE_CSV"
echo "$TS,$(testpmd-stats --packets)" >> "$PKT_CSV"
echo "$TS,port_opackets=$(testpmd-stats --port-opackets),port_obytes=$(testpmd-stats --port-obytes)" >> "$PORT_CSV"
`

// Distributor implements the Profile Distributor.
type Distributor struct {
	Cluster api.ClusterClient
}

// New returns a Distributor bound to a cluster client.
func New(cluster api.ClusterClient) *Distributor {
	return &Distributor{Cluster: cluster}
}

// DistributeInput names one TX workload and the single profile script
// (ProfileName under ProfileDir) to ship to it, bundled with the sampling
// helper into one archive. It carries no list of scripts: each archive
// holds exactly one profile.
type DistributeInput struct {
	TXWorkload  string
	ProfileDir  string
	ProfileName string
	Skip        bool
}

// Distribute bundles each input's one generator script and the sampling
// helper into a single archive, and extracts it at the workload's
// filesystem root. Fan-out across TX workloads is parallel, one archive per
// workload.
func (d *Distributor) Distribute(ctx context.Context, ow *rpc.OutputWriter, inputs []DistributeInput) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for _, in := range inputs {
		in := in
		if in.Skip {
			ow.Debugw("skipping profile distribution", "workload", in.TXWorkload)
			continue
		}
		eg.Go(func() error {
			return d.distributeOne(egCtx, ow, in)
		})
	}

	return eg.Wait()
}

func (d *Distributor) distributeOne(ctx context.Context, ow *rpc.OutputWriter, in DistributeInput) error {
	staged, cleanup, err := stageProfile(in.ProfileDir, in.ProfileName)
	if err != nil {
		return fmt.Errorf("failed to stage profile for %s: %w", in.TXWorkload, err)
	}
	defer cleanup()

	archive, err := buildArchive(staged, in.ProfileName)
	if err != nil {
		return fmt.Errorf("failed to build profile archive for %s: %w", in.TXWorkload, err)
	}

	_, err = d.Cluster.Exec(ctx, in.TXWorkload, mainContainer, []string{"tar", "-xf", "-", "-C", "/"}, archive)
	if err != nil {
		return fmt.Errorf("failed to extract profile archive in %s: %w", in.TXWorkload, err)
	}

	ow.Infow("distributed profile", "workload", in.TXWorkload, "profile", in.ProfileName)
	return nil
}

// stageProfile copies the named profile script into a fresh local staging
// directory via otiai10/copy, mirroring how local artifacts are prepared
// before being pushed into a pod's filesystem. Returns the staging
// directory and a cleanup func that removes it.
func stageProfile(profileDir, profileName string) (string, func(), error) {
	staging, err := os.MkdirTemp("", "benchctl-profile-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(staging) }

	src := filepath.Join(profileDir, profileName)
	dst := filepath.Join(staging, profileName)
	if err := copy.Copy(src, dst); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to stage %s: %w", src, err)
	}
	return staging, cleanup, nil
}

// buildArchive tars the named profile script plus the sampling helper into
// one in-memory archive.
func buildArchive(profileDir, profileName string) (*bytes.Reader, error) {
	if !strings.HasSuffix(profileName, ".lua") {
		return nil, fmt.Errorf("profile %q is not a .lua script", profileName)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if err := addFileToTar(tw, filepath.Join(profileDir, profileName), "profiles/"+profileName); err != nil {
		return nil, err
	}

	if err := addBytesToTar(tw, "profiles/sample.sh", []byte(SamplingHelperScript), 0o755); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}

func addFileToTar(tw *tar.Writer, localPath, archivePath string) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	return addBytesToTar(tw, archivePath, content, 0o644)
}

func addBytesToTar(tw *tar.Writer, archivePath string, content []byte, mode int64) error {
	if err := tw.WriteHeader(&tar.Header{
		Name: archivePath,
		Mode: mode,
		Size: int64(len(content)),
	}); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}
