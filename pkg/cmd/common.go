// Package cmd wires benchctl's verbs onto urfave/cli, the same CLI
// framework the teacher built its `run`/`list`/`healthcheck` commands on.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli"

	"github.com/spyroot/benchctl/pkg/cluster"
	"github.com/spyroot/benchctl/pkg/config"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// Commands is the full verb set assembled onto the root app.
var Commands = []cli.Command{
	GenerateFlowCommand,
	StartGeneratorCommand,
	ValidateNPZCommand,
	SanityCommand,
	UploadWandbCommand,
}

// processContext returns a context cancelled on SIGINT, the single
// abort channel every verb's long-running work selects on.
func processContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

// loadEnv loads $BENCHCTL_HOME/.env.toml, overridden by the --namespace and
// --results-dir global flags when present.
func loadEnv(c *cli.Context) (config.EnvConfig, error) {
	env, err := config.Load()
	if err != nil {
		return env, err
	}
	if ns := c.GlobalString("namespace"); ns != "" {
		env.Namespace = ns
	}
	if rd := c.GlobalString("results-dir"); rd != "" {
		env.ResultsDir = rd
	}
	if kc := c.GlobalString("kubeconfig"); kc != "" {
		env.KubeConfigPath = kc
	}
	return env, nil
}

// newClusterClient builds the Kubernetes-backed api.ClusterClient for env.
func newClusterClient(env config.EnvConfig) (*cluster.Client, error) {
	cc, err := cluster.New(env.Namespace, env.KubeConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build cluster client: %w", err)
	}
	return cc, nil
}

// newOutputWriter builds an OutputWriter teed into a per-run log under
// env.ResultsDir, falling back to stdout-only on failure to create it.
func newOutputWriter(env config.EnvConfig, name string) (*rpc.OutputWriter, func()) {
	if env.ResultsDir == "" {
		return rpc.New(os.Stdout), func() {}
	}
	if err := os.MkdirAll(env.ResultsDir, 0o755); err != nil {
		return rpc.New(os.Stdout), func() {}
	}
	path := env.ResultsDir + "/" + name + ".log"
	ow, closer, err := rpc.NewFileScoped(path)
	if err != nil {
		return rpc.New(os.Stdout), func() {}
	}
	return ow, closer
}
