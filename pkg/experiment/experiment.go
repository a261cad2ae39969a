// Package experiment implements the Experiment Controller: it
// derives the run identifier, composes C1-C6, enforces phase ordering,
// writes per-pair metadata, collects artifacts, and drives cleanup on
// success and on abort.
package experiment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/spyroot/benchctl/pkg/api"
	"github.com/spyroot/benchctl/pkg/artifact"
	"github.com/spyroot/benchctl/pkg/config"
	"github.com/spyroot/benchctl/pkg/generator"
	"github.com/spyroot/benchctl/pkg/hypervisor"
	"github.com/spyroot/benchctl/pkg/npz"
	"github.com/spyroot/benchctl/pkg/profile"
	"github.com/spyroot/benchctl/pkg/receiver"
	"github.com/spyroot/benchctl/pkg/rpc"
	"github.com/spyroot/benchctl/pkg/sshpool"
	"github.com/spyroot/benchctl/pkg/topology"
)

// drainWindow is the sleep after generators finish so in-flight packets are
// accounted before the receiver is stopped.
const drainWindow = 60 * time.Second

// hypervisorGrace is added to the generator duration to size the
// hypervisor sampler's run budget.
const hypervisorGrace = 30 * time.Second

// PairRun is one Pair driven under one Profile.
type PairRun struct {
	Pair        api.Pair
	TXCores     api.CoreAssignment
	RXCores     api.CoreAssignment
	Dir         string
	Failed      bool
	FailureKind error
	WarmupLog   []byte
}

// Experiment is one invocation's top-level run state.
type Experiment struct {
	ID        string
	RunID     string // uuid correlation id, independent of the content-derived ExperimentID
	Profile   api.Profile
	Pairs     []*PairRun
	StartedAt time.Time
}

// DeriveID computes the ExperimentID: 8 hex chars of
// md5(profile_name || timestamp).
func DeriveID(profileName string, ts time.Time) string {
	sum := md5.Sum([]byte(profileName + "|" + ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:8]
}

// Controller composes C1-C6, C8 against one cluster and one Experiment.
type Controller struct {
	Cluster api.ClusterClient
	Pool    *sshpool.Pool
	Env     config.EnvConfig
	Opts    config.RunOptions
}

// New builds a Controller from resolved configuration.
func New(cluster api.ClusterClient, pool *sshpool.Pool, env config.EnvConfig, opts config.RunOptions) *Controller {
	return &Controller{Cluster: cluster, Pool: pool, Env: env, Opts: opts}
}

// Run executes the full run sequence for one profile and returns the
// completed Experiment. ctx is the single abort channel; cancellation
// triggers the SIGINT cleanup path and returns with an error wrapping
// api.ErrAbort.
func (c *Controller) Run(ctx context.Context, ow *rpc.OutputWriter, prof api.Profile, profileDir string) (*Experiment, error) {
	startedAt := time.Now().UTC()
	exp := &Experiment{
		ID:        DeriveID(prof.Filename, startedAt),
		RunID:     uuid.NewString(),
		Profile:   prof,
		StartedAt: startedAt,
	}
	ow = ow.With("expid", exp.ID, "run_id", exp.RunID)
	ow.Infow("experiment starting", "profile", prof.Filename)

	// Step 2: resolve topology, validate I1/I2. A Pair violating I2 is
	// skipped; its siblings proceed.
	resolver := topology.New(c.Cluster)
	pairs, hvMap, err := resolver.Resolve(ctx, ow)
	if err != nil {
		return nil, fmt.Errorf("topology resolution failed: %w", err)
	}

	exp.Pairs = make([]*PairRun, 0, len(pairs))
	for _, p := range pairs {
		if len(p.TX.Cores) < 2 || len(p.RX.Cores) < 2 {
			err := fmt.Errorf("%w: pair %s-%s exposes fewer than 2 cores", api.ErrInsufficientCores, p.TX.Name, p.RX.Name)
			ow.Warnw("skipping pair", "pair", p.Name(), "error", err)
			continue
		}
		exp.Pairs = append(exp.Pairs, &PairRun{Pair: p})
	}

	// Step 3: start hypervisor samplers asynchronously.
	samplersDone, samplerErrs := c.startHypervisorSamplers(ctx, ow, exp, hvMap)

	// Step 4: distribute profiles, unless suppressed.
	if !c.Opts.SkipCopy {
		if err := c.distributeProfiles(ctx, ow, exp, profileDir); err != nil {
			return nil, fmt.Errorf("profile distribution failed: %w", err)
		}
	}

	// Step 5: run receivers. Capture core assignments.
	if !c.Opts.SkipTestpmd {
		c.runReceivers(ctx, ow, exp)
	}

	// Step 6: collect each node's kernel command line once.
	cmdlines := c.collectKernelCmdlines(ctx, ow, exp)

	// Step 8: run generators in parallel; block until all return.
	results := c.runGenerators(ctx, ow, exp)

	// Step 9: drain window.
	select {
	case <-ctx.Done():
	case <-time.After(drainWindow):
	}

	// Step 10: stop receivers.
	c.stopReceivers(ctx, ow, exp)

	// Step 11: collect artifacts for every successfully-launched Pair.
	c.collectArtifacts(ctx, ow, exp, results, prof.Basename(), cmdlines)

	// Step 12: join samplers, close the pool, kill the multiplexer session.
	<-samplersDone
	c.Pool.CloseAll()
	for _, p := range pairs {
		_ = c.Cluster.KillProcess(ctx, p.TX.Name, "main", "tmux", "TERM")
	}

	if err := mergeErrors(samplerErrs); err != nil {
		ow.Warnw("one or more hypervisor samplers reported errors", "error", err)
	}

	select {
	case <-ctx.Done():
		return exp, fmt.Errorf("%w", api.ErrAbort)
	default:
	}

	ow.Infow("experiment complete", "pairs", len(exp.Pairs))
	return exp, nil
}

func (c *Controller) startHypervisorSamplers(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment, hvMap map[string]string) (<-chan struct{}, *multierror.Group) {
	unique := make(map[string]bool)
	for _, hv := range hvMap {
		unique[hv] = true
	}

	var mg multierror.Group
	done := make(chan struct{})

	genDuration := time.Duration(c.Opts.Duration) * time.Second

	resultsDir := filepath.Join(c.Env.ResultsDir, exp.ID)
	_ = os.MkdirAll(resultsDir, 0o755)

	for host := range unique {
		host := host
		mg.Go(func() error {
			path := filepath.Join(resultsDir, fmt.Sprintf("hypervisor_%s.csv", host))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create hypervisor csv for %s: %w", host, err)
			}
			defer f.Close()

			sampler := hypervisor.New(c.Pool, host, c.Opts.NICName)
			return sampler.Run(ctx, ow, f, time.Duration(c.Opts.SampleInterval)*time.Second, genDuration, hypervisorGrace)
		})
	}

	go func() {
		mg.Wait()
		close(done)
	}()

	return done, &mg
}

func (c *Controller) distributeProfiles(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment, profileDir string) error {
	dist := profile.New(c.Cluster)
	inputs := make([]profile.DistributeInput, 0, len(exp.Pairs))
	for _, pr := range exp.Pairs {
		inputs = append(inputs, profile.DistributeInput{
			TXWorkload:  pr.Pair.TX.Name,
			ProfileDir:  profileDir,
			ProfileName: exp.Profile.Filename,
			Skip:        c.Opts.SkipCopy,
		})
	}
	return dist.Distribute(ctx, ow, inputs)
}

func (c *Controller) runReceivers(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment) {
	for _, pr := range exp.Pairs {
		drv := receiver.New(c.Cluster, pr.Pair.RX)
		cores, err := drv.AssignCores(c.Opts.RXNumCore)
		if err != nil {
			pr.Failed = true
			pr.FailureKind = err
			ow.Warnw("receiver core assignment failed", "pair", pr.Pair.Name(), "error", err)
			continue
		}
		pr.RXCores = cores

		if err := drv.Warmup(ctx, ow, pr.Pair.TX.PortMAC, time.Duration(c.Opts.WarmupDuration)*time.Second); err != nil {
			ow.Warnw("warm-up reported a failure, continuing", "pair", pr.Pair.Name(), "error", err)
		}
		pr.WarmupLog = drv.WarmupLog()

		if err := drv.Start(ctx, ow, time.Duration(c.Opts.Duration)*time.Second, c.Opts.SampleCountFor()); err != nil {
			pr.Failed = true
			pr.FailureKind = err
			ow.Warnw("receiver failed to come live", "pair", pr.Pair.Name(), "error", err)
		}
	}
}

// collectKernelCmdlines reads /proc/cmdline once per distinct workload
// (step 6: "collect each node's kernel command line once"), keyed by
// workload name so a failed read on one pod never masks another's.
func (c *Controller) collectKernelCmdlines(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment) map[string]string {
	cmdlines := make(map[string]string)
	for _, pr := range exp.Pairs {
		if pr.Failed {
			continue
		}
		for _, w := range []api.Workload{pr.Pair.TX, pr.Pair.RX} {
			if _, seen := cmdlines[w.Name]; seen {
				continue
			}
			cmdline, err := artifact.CollectKernelCmdline(ctx, c.Cluster, w.Name)
			if err != nil {
				ow.Warnw("failed to collect kernel cmdline", "workload", w.Name, "error", err)
				continue
			}
			cmdlines[w.Name] = cmdline
		}
	}
	return cmdlines
}

func (c *Controller) runGenerators(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment) map[string]generator.Result {
	results := make(map[string]generator.Result)
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, len(exp.Pairs))

	type outcome struct {
		name string
		res  generator.Result
		err  error
	}
	out := make(chan outcome, len(exp.Pairs))

	for _, pr := range exp.Pairs {
		pr := pr
		if pr.Failed {
			continue
		}
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()

			opts := generator.Options{
				ControlPort:    c.Opts.ControlPort,
				Duration:       time.Duration(c.Opts.Duration) * time.Second,
				SampleInterval: time.Duration(c.Opts.SampleInterval) * time.Second,
				SampleCount:    c.Opts.SampleCountFor(),
				Latency:        c.Opts.Latency,
				SessionName:    exp.Profile.Basename(),
			}
			drv := generator.New(c.Cluster, pr.Pair.TX, opts)

			csvPaths := [3]string{
				fmt.Sprintf("/tmp/%s_rate.csv", pr.Pair.TX.Name),
				fmt.Sprintf("/tmp/%s_pkt.csv", pr.Pair.TX.Name),
				fmt.Sprintf("/tmp/%s_port.csv", pr.Pair.TX.Name),
			}

			res, err := drv.Run(egCtx, ow, csvPaths)
			out <- outcome{name: pr.Pair.Name(), res: res, err: err}
			return nil
		})
	}

	_ = eg.Wait()
	close(out)

	for o := range out {
		if o.err != nil {
			ow.Warnw("generator driver failed", "pair", o.name, "error", o.err)
			continue
		}
		results[o.name] = o.res
	}
	return results
}

func (c *Controller) stopReceivers(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment) {
	for _, pr := range exp.Pairs {
		if pr.Failed {
			continue
		}
		drv := receiver.New(c.Cluster, pr.Pair.RX)
		if err := drv.Stop(ctx); err != nil {
			ow.Warnw("failed to stop receiver", "pair", pr.Pair.Name(), "error", err)
		}
	}
}

func (c *Controller) collectArtifacts(ctx context.Context, ow *rpc.OutputWriter, exp *Experiment, results map[string]generator.Result, profileBasename string, cmdlines map[string]string) {
	for _, pr := range exp.Pairs {
		if pr.Failed {
			continue
		}
		res, ok := results[pr.Pair.Name()]
		if !ok {
			ow.Warnw("no generator result, skipping archive", "pair", pr.Pair.Name())
			continue
		}
		pr.TXCores = res.Cores

		dir := artifact.Dir(c.Env.ResultsDir, exp.ID, pr.Pair, profileBasename)
		if err := artifact.EnsureDir(dir); err != nil {
			ow.Warnw("failed to create artifact dir", "pair", pr.Pair.Name(), "error", err)
			continue
		}
		pr.Dir = dir

		if err := artifact.WriteMetadata(dir, artifact.Metadata{
			ExpID:     exp.ID,
			Timestamp: exp.StartedAt,
			Profile:   exp.Profile.Filename,
			TXPod:     pr.Pair.TX.Name,
			RXPod:     pr.Pair.RX.Name,
			TXNode:    pr.Pair.TX.HostNode,
			RXNode:    pr.Pair.RX.HostNode,
			TXMAC:     pr.Pair.TX.PortMAC,
			RXMAC:     pr.Pair.RX.PortMAC,
			TXNuma:    intsToCSV(pr.Pair.TX.Cores),
			RXNuma:    intsToCSV(pr.Pair.RX.Cores),
			TXCmdline: cmdlines[pr.Pair.TX.Name],
			RXCmdline: cmdlines[pr.Pair.RX.Name],
			Options:   c.Opts.AsMetadata(),
		}); err != nil {
			ow.Warnw("failed to write metadata.txt", "pair", pr.Pair.Name(), "error", err)
		}

		// §4.7 step 11: pull the RX stat log once, alongside the warm-up log
		// and the two TX CSVs, verbatim, then build the parsed archives from
		// the same bytes.
		rxLog, err := c.Cluster.ReadFile(ctx, pr.Pair.RX.Name, "main", receiver.StatLogPath)
		if err != nil {
			ow.Warnw("failed to pull rx stat log", "pair", pr.Pair.Name(), "error", err)
		}
		c.writeRawArtifacts(ow, pr, res, rxLog)

		if err := c.writePairArchives(ow, exp, pr, res, rxLog, profileBasename); err != nil {
			ow.Warnw("failed to write archives", "pair", pr.Pair.Name(), "error", err)
		}
	}
}

// writeRawArtifacts writes the four raw per-Pair files §4.8/I3 require
// alongside metadata.txt and the two .npz archives: the warm-up log, the RX
// stat log, and the TX rate/port CSVs, each copied verbatim.
func (c *Controller) writeRawArtifacts(ow *rpc.OutputWriter, pr *PairRun, res generator.Result, rxLog []byte) {
	txName := pr.Pair.TX.Name

	if err := artifact.WriteRaw(pr.Dir, artifact.WarmupLogFilename(txName), pr.WarmupLog); err != nil {
		ow.Warnw("failed to write warm-up log", "pair", pr.Pair.Name(), "error", err)
	}
	if err := artifact.WriteRaw(pr.Dir, artifact.PortRateStatsFilename(txName), res.RawRateCSV); err != nil {
		ow.Warnw("failed to write tx rate csv", "pair", pr.Pair.Name(), "error", err)
	}
	if err := artifact.WriteRaw(pr.Dir, artifact.PortStatsFilename(txName), res.RawPortCSV); err != nil {
		ow.Warnw("failed to write tx port csv", "pair", pr.Pair.Name(), "error", err)
	}
	if err := artifact.WriteRaw(pr.Dir, artifact.StatsLogFilename(txName), rxLog); err != nil {
		ow.Warnw("failed to write rx stat log", "pair", pr.Pair.Name(), "error", err)
	}
}

func (c *Controller) writePairArchives(ow *rpc.OutputWriter, exp *Experiment, pr *PairRun, res generator.Result, rxLog []byte, profileBasename string) error {
	ts := time.Now().UTC()

	txSeries := npz.Pad(res.RateSeries)
	txSeries = append(txSeries, npz.Pad(res.PacketSeries)...)
	txSeries = append(txSeries, npz.Pad(res.PortSeries)...)

	if err := npz.Validate(txSeries, npz.RequiredTXSeries); err != nil {
		ow.Warnw("suppressing tx archive", "pair", pr.Pair.Name(), "error", err)
	} else {
		txName := artifact.ArchiveFilename(exp.ID, pr.Pair.TX.Name, "tx", pr.TXCores, profileBasename, ts)
		f, err := os.Create(filepath.Join(pr.Dir, txName))
		if err != nil {
			return err
		}
		err = npz.Write(f, txSeries)
		f.Close()
		if err != nil {
			return err
		}
	}

	if len(rxLog) == 0 {
		ow.Warnw("no rx stat log, suppressing rx archive", "pair", pr.Pair.Name())
		return nil
	}
	rxSeries, err := (artifact.DefaultCounterParser{}).Parse(rxLog)
	if err != nil {
		return fmt.Errorf("failed to parse rx stat log for %s: %w", pr.Pair.Name(), err)
	}
	rxSeries = npz.Pad(rxSeries)

	if err := npz.Validate(rxSeries, npz.RequiredRXSeries); err != nil {
		ow.Warnw("suppressing rx archive", "pair", pr.Pair.Name(), "error", err)
		return nil
	}

	rxName := artifact.ArchiveFilename(exp.ID, pr.Pair.RX.Name, "rx", pr.RXCores, profileBasename, ts)
	f, err := os.Create(filepath.Join(pr.Dir, rxName))
	if err != nil {
		return err
	}
	defer f.Close()
	return npz.Write(f, rxSeries)
}

func intsToCSV(vals []int) string {
	s := ""
	for i, v := range vals {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", v)
	}
	return s
}

func mergeErrors(mg *multierror.Group) error {
	return mg.Wait().ErrorOrNil()
}
