// Package cluster implements api.ClusterClient against a real Kubernetes
// cluster, adapted from the teacher's pkg/runner/cluster_k8s.go: the same
// pooled-Clientset and remotecommand.NewSPDYExecutor pattern it uses for
// CollectOutputs, generalized from "stream a tar of /outputs out of the
// collect-outputs pod" to "exec argv in a named workload's container and
// either collect or stream its output."
package cluster

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/spyroot/benchctl/pkg/api"
)

const defaultPoolWorkers = 8

// Client is the Kubernetes-backed api.ClusterClient.
type Client struct {
	namespace  string
	pool       *clientsetPool
	restConfig *rest.Config
}

var _ api.ClusterClient = (*Client)(nil)

// New builds a Client against the given namespace, pooling workers
// Clientsets.
func New(namespace, kubeconfigPath string) (*Client, error) {
	pool, err := newClientsetPool(defaultPoolWorkers, kubeconfigPath)
	if err != nil {
		return nil, err
	}
	return &Client{namespace: namespace, pool: pool, restConfig: pool.restConfig}, nil
}

func (c *Client) ListWorkloads(ctx context.Context) ([]string, error) {
	cs := c.pool.Acquire()
	defer c.pool.Release(cs)

	res, err := cs.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in namespace %s: %w", c.namespace, err)
	}

	names := make([]string, 0, len(res.Items))
	for _, pod := range res.Items {
		if strings.HasPrefix(pod.Name, "tx") || strings.HasPrefix(pod.Name, "rx") {
			names = append(names, pod.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) Exec(ctx context.Context, pod, container string, argv []string, stdin io.Reader) (api.ExecResult, error) {
	cs := c.pool.Acquire()
	defer c.pool.Release(cs)

	var stdout, stderr bytes.Buffer

	req := cs.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(c.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   argv,
			Stdin:     stdin != nil,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", req.URL())
	if err != nil {
		return api.ExecResult{}, fmt.Errorf("failed to build executor for pod %s: %w", pod, err)
	}

	err = exec.Stream(remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: &stdout,
		Stderr: &stderr,
	})

	result := api.ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		result.ExitCode = exitCodeFromErr(err)
		return result, fmt.Errorf("exec %v in pod %s failed: %w", argv, pod, err)
	}
	return result, nil
}

func (c *Client) ExecStream(ctx context.Context, pod, container string, argv []string, stdout io.Writer) error {
	cs := c.pool.Acquire()
	defer c.pool.Release(cs)

	req := cs.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(c.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   argv,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.restConfig, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("failed to build executor for pod %s: %w", pod, err)
	}

	out := bufio.NewWriter(stdout)
	defer out.Flush()

	return exec.Stream(remotecommand.StreamOptions{Stdout: out, Stderr: io.Discard})
}

// CopyTo tars the single local file and streams it as stdin to a `tar -x`
// running inside the pod, the same remotecommand.Stream wiring the teacher
// uses in CollectOutputs, run in reverse.
func (c *Client) CopyTo(ctx context.Context, pod, container, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for copy: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: remotePath[strings.LastIndex(remotePath, "/")+1:],
		Mode: 0o755,
		Size: info.Size(),
	}); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	destDir := remotePath[:strings.LastIndex(remotePath, "/")+1]
	if destDir == "" {
		destDir = "/"
	}

	_, err = c.Exec(ctx, pod, container, []string{"tar", "-xf", "-", "-C", destDir}, &buf)
	return err
}

func (c *Client) NodeLabel(ctx context.Context, node, key string) (string, bool, error) {
	cs := c.pool.Acquire()
	defer c.pool.Release(cs)

	n, err := cs.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
	if err != nil {
		return "", false, fmt.Errorf("failed to get node %s: %w", node, err)
	}
	v, ok := n.Labels[key]
	return v, ok, nil
}

func (c *Client) PodNode(ctx context.Context, pod string) (string, error) {
	cs := c.pool.Acquire()
	defer c.pool.Release(cs)

	p, err := cs.CoreV1().Pods(c.namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get pod %s: %w", pod, err)
	}
	return p.Spec.NodeName, nil
}

var cpusAllowedRe = regexp.MustCompile(`Cpus_allowed_list:\s*(\S+)`)

// AllowedCPUs execs `cat /proc/self/status` inside the workload and parses
// the Cpus_allowed_list line (ranges like "0-3,8") into an ordered,
// de-duplicated slice.
func (c *Client) AllowedCPUs(ctx context.Context, pod, container string) ([]int, error) {
	res, err := c.Exec(ctx, pod, container, []string{"cat", "/proc/self/status"}, nil)
	if err != nil {
		return nil, err
	}

	m := cpusAllowedRe.FindSubmatch(res.Stdout)
	if m == nil {
		return nil, fmt.Errorf("could not find Cpus_allowed_list in /proc/self/status for pod %s", pod)
	}
	return parseCPUList(string(m[1]))
}

func parseCPUList(s string) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(strings.TrimSpace(s), ",") {
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, err := strconv.Atoi(bounds[0])
			if err != nil {
				return nil, fmt.Errorf("invalid cpu range %q: %w", part, err)
			}
			hi, err := strconv.Atoi(bounds[1])
			if err != nil {
				return nil, fmt.Errorf("invalid cpu range %q: %w", part, err)
			}
			for v := lo; v <= hi; v++ {
				if !seen[v] {
					seen[v] = true
					out = append(out, v)
				}
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu entry %q: %w", part, err)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *Client) ProcessRunning(ctx context.Context, pod, container, nameSubstr string) (bool, error) {
	res, err := c.Exec(ctx, pod, container, []string{"pgrep", "-f", nameSubstr}, nil)
	if err != nil {
		if res.ExitCode == 1 {
			// pgrep exits 1 when no process matched; that's not a transport failure.
			return false, nil
		}
		return false, err
	}
	return len(bytes.TrimSpace(res.Stdout)) > 0, nil
}

func (c *Client) KillProcess(ctx context.Context, pod, container, nameSubstr, signal string) error {
	_, err := c.Exec(ctx, pod, container, []string{"pkill", "-" + signal, "-f", nameSubstr}, nil)
	if err != nil && !strings.Contains(err.Error(), "exit status 1") {
		// pkill exit 1 ("no processes matched") is not an error for our purposes.
		return err
	}
	return nil
}

func (c *Client) Logs(ctx context.Context, pod, container string, tailLines int64) (string, error) {
	cs := c.pool.Acquire()
	defer c.pool.Release(cs)

	opts := &corev1.PodLogOptions{Container: container, TailLines: &tailLines}
	req := cs.CoreV1().Pods(c.namespace).GetLogs(pod, opts)

	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open log stream for pod %s: %w", pod, err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", fmt.Errorf("failed to read logs for pod %s: %w", pod, err)
	}
	return buf.String(), nil
}

func (c *Client) ReadFile(ctx context.Context, pod, container, path string) ([]byte, error) {
	res, err := c.Exec(ctx, pod, container, []string{"cat", path}, nil)
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

func (c *Client) Close() error {
	return nil
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	if cee, ok := err.(interface{ ExitStatus() int }); ok {
		return cee.ExitStatus()
	}
	return 1
}
