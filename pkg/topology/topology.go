// Package topology implements the Topology Resolver: it
// enumerates TX/RX workload pairs, probes each workload concurrently for its
// port MAC, allowed CPU list, and host node, and projects the HypervisorMap
// from node labels.
package topology

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

const (
	maxProbeFanOut = 8

	// hypervisorLabelKey is the node label carrying the hypervisor
	// identifier a host-node runs on; absent on bare-metal nodes.
	hypervisorLabelKey = "benchctl.io/hypervisor"

	// mainContainer is the container name every probe and driver targets;
	// workloads in this system run one container each.
	mainContainer = "main"
)

// defaultProbeArgv is the argv used to launch the generator binary in
// no-op probe mode to discover its bound port MAC. The generator
// binary path itself is configuration, not hard-coded, so callers can
// override ProbeCommand.
var defaultProbeArgv = []string{"testpmd-probe", "--no-op", "--print-mac"}

// Resolver implements C1 against an api.ClusterClient.
type Resolver struct {
	Cluster      api.ClusterClient
	ProbeCommand []string
}

// New returns a Resolver with the default probe command.
func New(cluster api.ClusterClient) *Resolver {
	return &Resolver{Cluster: cluster, ProbeCommand: defaultProbeArgv}
}

// Resolve enumerates every tx*/rx* workload, pairs them by sorted index,
// probes each concurrently (bounded to maxProbeFanOut), and projects the
// host-node -> hypervisor-id map.
func (r *Resolver) Resolve(ctx context.Context, ow *rpc.OutputWriter) ([]api.Pair, map[string]string, error) {
	names, err := r.Cluster.ListWorkloads(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list workloads: %w", err)
	}

	var txNames, rxNames []string
	for _, n := range names {
		switch {
		case strings.HasPrefix(n, "tx"):
			txNames = append(txNames, n)
		case strings.HasPrefix(n, "rx"):
			rxNames = append(rxNames, n)
		}
	}
	sort.Strings(txNames)
	sort.Strings(rxNames)

	if len(txNames) == 0 || len(rxNames) == 0 {
		return nil, nil, fmt.Errorf("%w: found %d tx workloads and %d rx workloads", api.ErrTopologyMismatch, len(txNames), len(rxNames))
	}
	if len(txNames) != len(rxNames) {
		return nil, nil, fmt.Errorf("%w: %d tx workloads vs %d rx workloads", api.ErrTopologyMismatch, len(txNames), len(rxNames))
	}

	all := append(append([]string{}, txNames...), rxNames...)
	probed, err := r.probeAll(ctx, ow, all)
	if err != nil {
		return nil, nil, err
	}

	pairs := make([]api.Pair, 0, len(txNames))
	for i := range txNames {
		pairs = append(pairs, api.Pair{
			TX: probed[txNames[i]],
			RX: probed[rxNames[i]],
		})
	}

	hvMap, err := r.hypervisorMap(ctx, pairs)
	if err != nil {
		return nil, nil, err
	}
	for i := range pairs {
		pairs[i].TX.Hypervisor = hvMap[pairs[i].TX.HostNode]
		pairs[i].RX.Hypervisor = hvMap[pairs[i].RX.HostNode]
	}

	return pairs, hvMap, nil
}

// probeAll probes every workload concurrently, bounded to maxProbeFanOut
//.
func (r *Resolver) probeAll(ctx context.Context, ow *rpc.OutputWriter, names []string) (map[string]api.Workload, error) {
	results := make(map[string]api.Workload, len(names))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxProbeFanOut)

	for _, name := range names {
		name := name
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()

			w, err := r.probeOne(egCtx, ow, name)
			if err != nil {
				return err
			}
			mu.Lock()
			results[name] = w
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Resolver) probeOne(ctx context.Context, ow *rpc.OutputWriter, name string) (api.Workload, error) {
	running, err := r.Cluster.ProcessRunning(ctx, name, mainContainer, "testpmd")
	if err != nil {
		return api.Workload{}, fmt.Errorf("failed to check for running generator in %s: %w", name, err)
	}
	if running {
		return api.Workload{}, fmt.Errorf("%w: generator already running in %s", api.ErrProbeConflict, name)
	}

	res, err := r.Cluster.Exec(ctx, name, mainContainer, r.ProbeCommand, nil)
	if err != nil {
		return api.Workload{}, fmt.Errorf("failed to probe port mac in %s: %w", name, err)
	}
	mac := strings.TrimSpace(string(res.Stdout))

	cores, err := r.Cluster.AllowedCPUs(ctx, name, mainContainer)
	if err != nil {
		return api.Workload{}, fmt.Errorf("failed to read allowed cpus for %s: %w", name, err)
	}

	node, err := r.Cluster.PodNode(ctx, name)
	if err != nil {
		return api.Workload{}, fmt.Errorf("failed to read host node for %s: %w", name, err)
	}

	ow.Debugw("probed workload", "workload", name, "node", node, "mac", mac, "cores", cores)

	return api.Workload{
		Name:     name,
		HostNode: node,
		PortMAC:  mac,
		Cores:    cores,
	}, nil
}

// hypervisorMap projects host-node -> hypervisor-id; nodes without the
// label are retained in Pairs but omitted here.
func (r *Resolver) hypervisorMap(ctx context.Context, pairs []api.Pair) (map[string]string, error) {
	hv := make(map[string]string)
	seen := make(map[string]bool)

	for _, p := range pairs {
		for _, w := range []api.Workload{p.TX, p.RX} {
			if seen[w.HostNode] {
				continue
			}
			seen[w.HostNode] = true

			val, ok, err := r.Cluster.NodeLabel(ctx, w.HostNode, hypervisorLabelKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read hypervisor label for node %s: %w", w.HostNode, err)
			}
			if ok {
				hv[w.HostNode] = val
			}
		}
	}
	return hv, nil
}
