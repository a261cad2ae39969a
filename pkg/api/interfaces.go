package api

import (
	"context"
	"io"
	"time"
)

// ExecResult is the outcome of one ClusterClient.Exec call.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ClusterClient is the cluster-exec/cp/label-lookup collaborator (§1 "out of
// scope... the cluster client"). The core depends only on this interface;
// pkg/cluster supplies the concrete Kubernetes-backed implementation.
type ClusterClient interface {
	// ListWorkloads returns every pod in the configured namespace whose name
	// begins with "tx" or "rx".
	ListWorkloads(ctx context.Context) ([]string, error)

	// Exec runs argv inside pod/container and waits for completion.
	Exec(ctx context.Context, pod, container string, argv []string, stdin io.Reader) (ExecResult, error)

	// ExecStream runs argv inside pod/container, streaming stdout to w until
	// the command exits or ctx is cancelled.
	ExecStream(ctx context.Context, pod, container string, argv []string, stdout io.Writer) error

	// CopyTo copies the local file at localPath into the pod's filesystem at
	// remotePath.
	CopyTo(ctx context.Context, pod, container, localPath, remotePath string) error

	// NodeLabel reads a label from the node a pod is scheduled on; ok is
	// false if the label is absent.
	NodeLabel(ctx context.Context, node, key string) (value string, ok bool, err error)

	// PodNode returns the host-node name a pod is scheduled on.
	PodNode(ctx context.Context, pod string) (string, error)

	// AllowedCPUs returns the OS-reported CPU list available to pod's main
	// container.
	AllowedCPUs(ctx context.Context, pod, container string) ([]int, error)

	// ProcessRunning reports whether a process whose command line contains
	// nameSubstr is running inside pod (§4.1 EProbeConflict check, §4.3/§4.4
	// liveness checks).
	ProcessRunning(ctx context.Context, pod, container, nameSubstr string) (bool, error)

	// KillProcess sends signal (by name, e.g. "TERM", "KILL") to every
	// process whose command line contains nameSubstr inside pod.
	KillProcess(ctx context.Context, pod, container, nameSubstr, signal string) error

	// Logs returns the last tailLines of a pod's container log.
	Logs(ctx context.Context, pod, container string, tailLines int64) (string, error)

	// ReadFile reads a file from inside the pod's filesystem.
	ReadFile(ctx context.Context, pod, container, path string) ([]byte, error)

	// Close releases any pooled transport held by the client.
	Close() error
}

// ShellSession is one live remote-shell transport to a hypervisor host (§4.6
// Connection Pool).
type ShellSession interface {
	// Run executes a command line on the remote host and returns combined
	// stdout.
	Run(ctx context.Context, cmd string) (stdout string, err error)
	// Alive reports whether the underlying transport is still usable.
	Alive() bool
	// Close tears down the transport.
	Close() error
}

// ShellDialer opens new ShellSessions; the concrete implementation wraps an
// SSH (or other remote shell) client library (§1 "out of scope... the
// remote shell client library").
type ShellDialer interface {
	Dial(ctx context.Context, host, username, password string, keepalive time.Duration) (ShellSession, error)
}

// ProfileTemplater is the out-of-scope external collaborator that renders
// generator-script text for a sweep of (flows, rate, pkt-size, mode)
// combinations (§1, §9 "refers to the script as an opaque artifact produced
// by an external templater"). benchctl only needs to discover and package
// its output; pkg/profile ships a minimal literal templater so
// `generate_flow` has something concrete to call in the absence of the real
// one.
type ProfileTemplater interface {
	Render(flows, pktSize, percentRate int, mode FlowMode) (filename string, content []byte, err error)
}
