// Package generator implements the Generator Driver: for one TX
// workload, compute its core split, launch the generator under a
// terminal-multiplexer window, sample counters over a control channel on a
// fixed cadence, signal stop, and collect one last sample.
package generator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/artifact"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// State is one node of the C4 state machine.
type State int

const (
	Fresh State = iota
	Prepared
	Launched
	Sampling
	Stopping
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "Fresh"
	case Prepared:
		return "Prepared"
	case Launched:
		return "Launched"
	case Sampling:
		return "Sampling"
	case Stopping:
		return "Stopping"
	case Done:
		return "Done"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

const (
	mainContainer = "main"

	// connRefusedExit is the exit status the control-push helper reports
	// when the generator's loopback port refuses the connection, the
	// signal that the generator process is gone.
	connRefusedExit = 111
)

// Options configures one Driver run, a subset of config.RunOptions scoped to
// what the generator needs.
type Options struct {
	ControlPort    int
	Duration       time.Duration
	SampleInterval time.Duration
	SampleCount    int
	Latency        bool
	SessionName    string // tmux session name, derived from the profile basename
}

// Result is what a successful Driver run hands back to the Controller:
// the resolved core assignment and its sample series, realized as a typed
// result instead of a bare sentinel.
type Result struct {
	Cores         api.CoreAssignment
	RateSeries    []api.SampleSeries
	PacketSeries  []api.SampleSeries
	PortSeries    []api.SampleSeries
	RawRateCSV    []byte // verbatim "<tx>_port_rate_stats.csv" content
	RawPortCSV    []byte // verbatim "<tx>_port_stats.csv" content
	LatencyProbes int
	EarlyExit     bool
}

// Driver drives one TX workload through the C4 state machine.
type Driver struct {
	Cluster  api.ClusterClient
	Workload api.Workload
	Opts     Options

	state State
	cores api.CoreAssignment
}

// New returns a fresh Driver for workload w.
func New(cluster api.ClusterClient, w api.Workload, opts Options) *Driver {
	return &Driver{Cluster: cluster, Workload: w, Opts: opts, state: Fresh}
}

func (d *Driver) State() State { return d.state }

// Prepare computes the workload's core split.
func (d *Driver) Prepare() error {
	cores, err := splitCores(d.Workload.Cores, d.Opts.Latency)
	if err != nil {
		return err
	}
	d.cores = cores
	d.state = Prepared
	return nil
}

// Launch starts the generator inside a terminal-multiplexer window named
// after the workload, within a session named after the profile, wrapped
// with a shell-level timeout.
func (d *Driver) Launch(ctx context.Context) error {
	budget := d.Opts.Duration + 2*time.Duration(d.Opts.SampleCount)*time.Second + 24*time.Second

	argv := d.buildLaunchArgv(budget)

	if err := d.Cluster.ExecStream(ctx, d.Workload.Name, mainContainer, argv, nil); err != nil {
		select {
		case <-ctx.Done():
			d.state = Aborted
			return ctx.Err()
		default:
		}
		d.state = Aborted
		return fmt.Errorf("failed to launch generator in %s: %w", d.Workload.Name, err)
	}
	return nil
}

// buildLaunchArgv builds the tmux invocation as an argv list, never a
// composed shell string.
func (d *Driver) buildLaunchArgv(budget time.Duration) []string {
	windowName := d.Workload.Name
	sessionName := d.Opts.SessionName

	genArgv := []string{
		"timeout", fmt.Sprintf("%ds", int(budget.Seconds())),
		"testpmd-gen",
		"--control-port", strconv.Itoa(d.Opts.ControlPort),
	}
	if len(d.cores.TXCores) > 0 {
		genArgv = append(genArgv, "--tx-cores", joinInts(d.cores.TXCores))
	}
	if len(d.cores.RXCores) > 0 {
		genArgv = append(genArgv, "--rx-cores", joinInts(d.cores.RXCores))
	}
	if d.Opts.Latency {
		p0, p1 := latencyPortSplit(d.cores.TXCores)
		genArgv = append(genArgv, "--tx-port0-cores", joinInts(p0), "--tx-port1-cores", joinInts(p1))
		p0, p1 = latencyPortSplit(d.cores.RXCores)
		genArgv = append(genArgv, "--rx-port0-cores", joinInts(p0), "--rx-port1-cores", joinInts(p1))
	}

	argv := []string{"tmux", "new-session", "-d", "-s", sessionName, "-n", windowName}
	return append(argv, genArgv...)
}

func joinInts(vals []int) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += strconv.Itoa(v)
	}
	return out
}

// controlPush pushes the sampling helper against the generator's loopback
// control port from inside the workload,
// writing the three CSV row fragments to csvPaths. Returns true if the
// connection was refused.
func (d *Driver) controlPush(ctx context.Context, csvPaths [3]string) (refused bool, err error) {
	argv := []string{
		"profiles/sample.sh",
		csvPaths[0], csvPaths[1], csvPaths[2],
	}
	res, err := d.Cluster.Exec(ctx, d.Workload.Name, mainContainer, argv, nil)
	if err != nil {
		return false, err
	}
	if res.ExitCode == connRefusedExit {
		return true, nil
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("%w: control push exited %d", api.ErrGeneratorGone, res.ExitCode)
	}
	return false, nil
}

// SendStop pushes the stop command over the control channel.
func (d *Driver) SendStop(ctx context.Context) error {
	_, err := d.Cluster.Exec(ctx, d.Workload.Name, mainContainer, []string{"testpmd-ctl", "--port", strconv.Itoa(d.Opts.ControlPort), "stop"}, nil)
	return err
}

// Run drives the full C4 lifecycle past Launch: the sampling loop, the
// post-stop sample, the stop command, and the final sample.
func (d *Driver) Run(ctx context.Context, ow *rpc.OutputWriter, csvPaths [3]string) (Result, error) {
	if err := d.Prepare(); err != nil {
		return Result{}, err
	}

	launchErr := make(chan error, 1)
	launchCtx, cancelLaunch := context.WithCancel(ctx)
	defer cancelLaunch()
	go func() { launchErr <- d.Launch(launchCtx) }()

	select {
	case err := <-launchErr:
		if err != nil {
			return Result{}, err
		}
	case <-time.After(2 * time.Second):
	}

	d.state = Launched
	iterations := d.Opts.SampleCount
	if iterations <= 0 && d.Opts.SampleInterval > 0 {
		iterations = int(d.Opts.Duration / d.Opts.SampleInterval)
	}

	d.state = Sampling
	earlyExit := false
	taken := 0
	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			d.state = Aborted
			return Result{}, ctx.Err()
		case <-time.After(d.Opts.SampleInterval):
		}

		seq := xid.New()
		refused, err := d.controlPush(ctx, csvPaths)
		ow.Debugw("sample tick", "workload", d.Workload.Name, "seq", seq.String(), "sample", i)
		if refused {
			ow.Warnw("generator connection refused, ending sampling loop early", "workload", d.Workload.Name, "sample", i)
			earlyExit = true
			break
		}
		if err != nil {
			ow.Warnw("sample push failed", "workload", d.Workload.Name, "sample", i, "error", err)
			continue
		}
		taken++
	}

	// Regardless of early exit, one additional post-stop sample is taken,
	// then a stop command is pushed, then one final sample.
	d.state = Stopping
	if _, err := d.controlPush(ctx, csvPaths); err != nil {
		ow.Warnw("post-stop sample failed", "workload", d.Workload.Name, "error", err)
	}
	if err := d.SendStop(ctx); err != nil {
		ow.Warnw("stop command failed", "workload", d.Workload.Name, "error", err)
	}
	if _, err := d.controlPush(ctx, csvPaths); err != nil {
		ow.Warnw("final sample failed", "workload", d.Workload.Name, "error", err)
	}

	d.state = Done
	ow.Infow("sampling loop complete", "workload", d.Workload.Name, "samples_taken", taken, "early_exit", earlyExit)
	result := Result{Cores: d.cores, EarlyExit: earlyExit}
	rawCSVs, series := d.collectSeries(ctx, ow, csvPaths)
	result.RateSeries, result.PacketSeries, result.PortSeries = series[0], series[1], series[2]
	result.RawRateCSV, result.RawPortCSV = rawCSVs[0], rawCSVs[2]
	return result, nil
}

// collectSeries pulls the three sample CSVs back from the workload and
// parses them via the counter-file parser (artifact.DefaultCounterParser is
// the concrete default), used to build the TX archive. It also hands back
// each CSV's raw bytes verbatim, for the two raw TX CSVs §4.8 requires in
// the artifact directory (rate and port; the pkt CSV has no raw-file
// counterpart in the layout).
func (d *Driver) collectSeries(ctx context.Context, ow *rpc.OutputWriter, csvPaths [3]string) (raw [3][]byte, series [3][]api.SampleSeries) {
	parser := artifact.DefaultCounterParser{}

	for i, path := range csvPaths {
		data, err := d.Cluster.ReadFile(ctx, d.Workload.Name, mainContainer, path)
		if err != nil {
			ow.Warnw("failed to pull sample csv", "workload", d.Workload.Name, "path", path, "error", err)
			continue
		}
		raw[i] = data

		parsed, err := parser.Parse(data)
		if err != nil {
			ow.Warnw("failed to parse sample csv", "workload", d.Workload.Name, "path", path, "error", err)
			continue
		}
		series[i] = parsed
	}
	return raw, series
}

// Abort kills the multiplexer session and transitions to Aborted: the
// belt-and-braces timeout wrapper still applies to any process it leaves
// behind.
func (d *Driver) Abort(ctx context.Context) error {
	d.state = Aborted
	if err := d.Cluster.KillProcess(ctx, d.Workload.Name, mainContainer, "tmux", "TERM"); err != nil {
		return err
	}
	return d.Cluster.KillProcess(ctx, d.Workload.Name, mainContainer, "testpmd-gen", "KILL")
}
