// Package wandb implements the `upload_wandb` verb: forward archives
// to a metrics sink. The sink is a Prometheus push-gateway, grounded on the
// prometheus/client_golang registry+push stack used elsewhere in the pack
// for metrics export (cuemby-warren/pkg/metrics, ghjramos-aistore).
package wandb

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/spyroot/benchctl/pkg/npz"
	"github.com/spyroot/benchctl/pkg/rpc"
)

// Sink pushes one archive's series as a batch of gauges to a push-gateway
// job scoped to the Experiment/Pair.
type Sink struct {
	GatewayURL string
	JobName    string
}

// New returns a Sink targeting the given push-gateway URL.
func New(gatewayURL, jobName string) *Sink {
	return &Sink{GatewayURL: gatewayURL, JobName: jobName}
}

// PushArchive reads an .npz archive and pushes its final sample per series
// as a labeled gauge, grouped by experiment id, pod, and side.
func (s *Sink) PushArchive(ow *rpc.OutputWriter, archivePath, experimentID, pod, side string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	series, err := npz.Read(f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}

	registry := prometheus.NewRegistry()

	for _, sr := range series {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: sanitizeMetricName(sr.Name),
			Help: fmt.Sprintf("final sample of series %s", sr.Name),
			ConstLabels: prometheus.Labels{
				"pod":  pod,
				"side": side,
			},
		})
		if len(sr.Values) > 0 {
			g.Set(float64(sr.Values[len(sr.Values)-1]))
		}
		registry.MustRegister(g)
	}

	pusher := push.New(s.GatewayURL, s.JobName).
		Grouping("experiment_id", experimentID).
		Grouping("pod", pod).
		Gatherer(registry)

	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push metrics for %s: %w", archivePath, err)
	}

	ow.Infow("pushed archive metrics", "archive", archivePath, "series", len(series))
	return nil
}

func sanitizeMetricName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return "benchctl_" + string(out)
}
