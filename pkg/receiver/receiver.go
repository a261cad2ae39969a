// Package receiver implements the Receiver Driver: for one RX
// workload, compute its core split, run a MAC-learning warm-up, launch the
// receive-side forwarder, and confirm liveness.
package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// State is one node of the C3 state machine.
type State int

const (
	Fresh State = iota
	Warming
	WarmDone
	Running
	Draining
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "Fresh"
	case Warming:
		return "Warming"
	case WarmDone:
		return "WarmDone"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Stopped:
		return "Stopped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

const mainContainer = "main"

// StatLogPath is the known in-workload path the forwarder writes its stat
// log to, pulled verbatim by the Controller during artifact collection.
const StatLogPath = "/tmp/benchctl_rx_stats.log"

const statLogPath = StatLogPath

// Driver drives one RX workload through the C3 state machine.
type Driver struct {
	Cluster  api.ClusterClient
	Workload api.Workload

	state        State
	cores        api.CoreAssignment
	warmupOutput []byte
}

// New returns a fresh Driver for workload w.
func New(cluster api.ClusterClient, w api.Workload) *Driver {
	return &Driver{Cluster: cluster, Workload: w, state: Fresh}
}

// State reports the driver's current state machine node.
func (d *Driver) State() State { return d.state }

// AssignCores implements the core-split rule: main is the first allowed core;
// an explicit numCore override claims cores[1:1+numCore], otherwise every
// core after main is used. Fails with EInsufficientCores when too few
// cores are present.
func (d *Driver) AssignCores(numCore int) (api.CoreAssignment, error) {
	cores := d.Workload.Cores
	if len(cores) < 2 {
		return api.CoreAssignment{}, fmt.Errorf("%w: workload %s exposes %d cores", api.ErrInsufficientCores, d.Workload.Name, len(cores))
	}

	main := cores[0]
	rest := cores[1:]
	if numCore > 0 {
		if numCore > len(rest) {
			return api.CoreAssignment{}, fmt.Errorf("%w: workload %s requested %d cores but only %d available", api.ErrInsufficientCores, d.Workload.Name, numCore, len(rest))
		}
		rest = rest[:numCore]
	}

	d.cores = api.CoreAssignment{Main: main, RXCores: rest}
	return d.cores, nil
}

// Warmup runs the forwarder in transmit-only mode against peerMAC for the
// given duration to populate the forwarding plane. Exit code
// 124 (the OS-level timeout wrapper firing) is success; any other non-zero
// status is EWarmupFailed but non-fatal.
func (d *Driver) Warmup(ctx context.Context, ow *rpc.OutputWriter, peerMAC string, duration time.Duration) error {
	d.state = Warming

	argv := []string{
		"timeout", fmt.Sprintf("%ds", int(duration.Seconds())),
		"testpmd-fwd", "--tx-only",
		"--core", fmt.Sprintf("%d", d.cores.Main),
		"--peer-mac", peerMAC,
	}

	res, err := d.Cluster.Exec(ctx, d.Workload.Name, mainContainer, argv, nil)
	if err != nil {
		d.state = WarmDone
		return fmt.Errorf("%w: workload %s warm-up exec failed: %v", api.ErrWarmupFailed, d.Workload.Name, err)
	}
	d.warmupOutput = append(append([]byte{}, res.Stdout...), res.Stderr...)

	if res.ExitCode != 0 && res.ExitCode != 124 {
		ow.Warnw("warm-up exited non-zero", "workload", d.Workload.Name, "exit_code", res.ExitCode)
		d.state = WarmDone
		return fmt.Errorf("%w: workload %s exit code %d", api.ErrWarmupFailed, d.Workload.Name, res.ExitCode)
	}

	d.state = WarmDone
	return nil
}

// Start launches the forwarder in receive-only mode under a shell-level
// timeout of duration+2*samples+60s, writing its stat log to statLogPath,
// then confirms liveness: the process is alive and the log exists and is
// non-empty.
func (d *Driver) Start(ctx context.Context, ow *rpc.OutputWriter, runDuration time.Duration, sampleCount int) error {
	budget := runDuration + 2*time.Duration(sampleCount)*time.Second + 60*time.Second

	argv := []string{
		"timeout", fmt.Sprintf("%ds", int(budget.Seconds())),
		"testpmd-fwd", "--rx-only",
		"--core", fmt.Sprintf("%d", d.cores.Main),
		"--stat-log", statLogPath,
	}

	launchErr := make(chan error, 1)
	go func() {
		launchErr <- d.Cluster.ExecStream(ctx, d.Workload.Name, mainContainer, argv, nil)
	}()

	select {
	case err := <-launchErr:
		ow.Errorw("receiver forwarder exited immediately", "workload", d.Workload.Name, "error", err)
		d.state = Failed
		return fmt.Errorf("failed to launch receiver in %s: %w", d.Workload.Name, err)
	case <-time.After(2 * time.Second):
	}

	alive, err := d.Cluster.ProcessRunning(ctx, d.Workload.Name, mainContainer, "testpmd-fwd")
	if err != nil || !alive {
		d.state = Failed
		return fmt.Errorf("%w: forwarder not running in %s", api.ErrReceiverNotLive, d.Workload.Name)
	}

	content, err := d.Cluster.ReadFile(ctx, d.Workload.Name, mainContainer, statLogPath)
	if err != nil || len(content) == 0 {
		d.state = Failed
		return fmt.Errorf("%w: stat log missing or empty in %s", api.ErrReceiverNotLive, d.Workload.Name)
	}

	d.state = Running
	ow.Infow("receiver live", "workload", d.Workload.Name)
	return nil
}

// Stop sends the soft-interrupt signal by name-scan process-kill.
func (d *Driver) Stop(ctx context.Context) error {
	d.state = Draining
	if err := d.Cluster.KillProcess(ctx, d.Workload.Name, mainContainer, "testpmd-fwd", "TERM"); err != nil {
		d.state = Failed
		return fmt.Errorf("failed to stop receiver in %s: %w", d.Workload.Name, err)
	}
	d.state = Stopped
	return nil
}

// WarmupLog returns the warm-up exec's combined stdout/stderr, verbatim, for
// the Artifact Layout Writer's "<tx>_warmup.log". Nil if Warmup was never
// run or its exec call failed outright.
func (d *Driver) WarmupLog() []byte { return d.warmupOutput }
