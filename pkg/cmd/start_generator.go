package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/spyroot/benchctl/pkg/config"
	"github.com/spyroot/benchctl/pkg/experiment"
	"github.com/spyroot/benchctl/pkg/profile"
	"github.com/spyroot/benchctl/pkg/sshpool"
)

// StartGeneratorCommand is the specification of the `start_generator`
// command: run one Experiment against the resolved topology for
// the given profile.
var StartGeneratorCommand = cli.Command{
	Name:      "start_generator",
	Usage:     "run a benchmark experiment against the cluster for one profile",
	ArgsUsage: "--profile <file>.lua",
	Action:    startGeneratorCommand,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "profile", Usage: "path to a generator profile file", Required: true},
		cli.IntFlag{Name: "duration", Usage: "generator run duration in seconds", Value: 30},
		cli.IntFlag{Name: "sample-interval", Usage: "seconds between counter samples", Value: 5},
		cli.IntFlag{Name: "sample-count", Usage: "total samples to take (0 derives from duration/interval)"},
		cli.IntFlag{Name: "txd", Usage: "TX descriptor ring size, must be a power of two"},
		cli.IntFlag{Name: "rxd", Usage: "RX descriptor ring size, must be a power of two"},
		cli.StringFlag{Name: "tx-socket-mem", Usage: "--socket-mem value for the TX side"},
		cli.StringFlag{Name: "rx-socket-mem", Usage: "--socket-mem value for the RX side"},
		cli.IntFlag{Name: "warmup-duration", Usage: "receiver warm-up duration in seconds", Value: 10},
		cli.IntFlag{Name: "control-port", Usage: "generator control-channel loopback port", Value: 22022},
		cli.IntFlag{Name: "rx-num-core", Usage: "override the receiver core count (0 = auto)"},
		cli.IntFlag{Name: "tx-num-core", Usage: "override the generator core count (0 = auto)"},
		cli.StringFlag{Name: "nic-name", Usage: "NIC name to sample hypervisor VF counters for"},
		cli.StringFlag{Name: "default-username", Usage: "default hypervisor SSH username"},
		cli.StringFlag{Name: "default-password", Usage: "default hypervisor SSH password"},
		cli.BoolFlag{Name: "skip-copy", Usage: "skip profile distribution"},
		cli.BoolFlag{Name: "skip-testpmd", Usage: "skip receiver warm-up/start"},
		cli.BoolFlag{Name: "latency", Usage: "latency mode: require at least 5 generator cores and split each side's cores across two ports (no rate search is run)"},
	},
}

func startGeneratorCommand(c *cli.Context) error {
	env, err := loadEnv(c)
	if err != nil {
		return err
	}

	opts := runOptionsFromFlags(c, env)
	if err := opts.Validate(); err != nil {
		return err
	}

	profilePath := c.String("profile")
	prof, err := profile.ParseFilename(filepath.Base(profilePath))
	if err != nil {
		return err
	}
	prof.Path = profilePath

	cc, err := newClusterClient(env)
	if err != nil {
		return err
	}
	defer cc.Close()

	pool := sshpool.New(sshpool.SSHDialer{}, opts.DefaultUsername, opts.DefaultPassword)

	ctx, cancel := processContext()
	defer cancel()

	ow, closeOW := newOutputWriter(env, "start_generator")
	defer closeOW()

	ctrl := experiment.New(cc, pool, env, opts)
	exp, err := ctrl.Run(ctx, ow, prof, filepath.Dir(profilePath))
	if err != nil {
		return err
	}

	fmt.Printf("experiment %s complete: %d pair(s) run\n", exp.ID, len(exp.Pairs))
	return nil
}

func runOptionsFromFlags(c *cli.Context, env config.EnvConfig) config.RunOptions {
	username := c.String("default-username")
	if username == "" {
		username = env.DefaultUser
	}
	password := c.String("default-password")
	if password == "" {
		password = env.DefaultPass
	}

	return config.RunOptions{
		Profile:         c.String("profile"),
		Duration:        c.Int("duration"),
		SampleInterval:  c.Int("sample-interval"),
		SampleCount:     c.Int("sample-count"),
		TXDescriptors:   c.Int("txd"),
		RXDescriptors:   c.Int("rxd"),
		TXSocketMem:     c.String("tx-socket-mem"),
		RXSocketMem:     c.String("rx-socket-mem"),
		WarmupDuration:  c.Int("warmup-duration"),
		ControlPort:     c.Int("control-port"),
		RXNumCore:       c.Int("rx-num-core"),
		TXNumCore:       c.Int("tx-num-core"),
		NICName:         c.String("nic-name"),
		DefaultUsername: username,
		DefaultPassword: password,
		SkipCopy:        c.Bool("skip-copy"),
		SkipTestpmd:     c.Bool("skip-testpmd"),
		Latency:         c.Bool("latency"),
	}
}
