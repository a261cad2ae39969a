// Package config loads benchctl's environment configuration from
// $BENCHCTL_HOME/.env.toml, the same BurntSushi/toml decode call the teacher
// uses for test plan manifests, and defines the option set for
// start_generator.
package config

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/spyroot/benchctl/pkg/api"
)

// EnvConfig is the on-disk, user-editable configuration: cluster namespace,
// results directory, default remote-shell credentials.
type EnvConfig struct {
	Namespace      string `toml:"namespace"`
	KubeConfigPath string `toml:"kubeconfig_path"`
	ResultsDir     string `toml:"results_dir"`
	DefaultUser    string `toml:"default_username"`
	DefaultPass    string `toml:"default_password"`
}

func home() string {
	h, _ := os.UserHomeDir()
	return h
}

// DefaultEnvConfig mirrors the teacher's defaultKubernetesConfig: fall back
// to ~/.kube/config and the "default" namespace, and ~/.benchctl for
// results, when nothing is configured.
func DefaultEnvConfig() EnvConfig {
	kubeconfig := filepath.Join(home(), ".kube", "config")
	if _, err := os.Stat(kubeconfig); os.IsNotExist(err) {
		kubeconfig = ""
	}
	return EnvConfig{
		Namespace:      "default",
		KubeConfigPath: kubeconfig,
		ResultsDir:     filepath.Join(home(), ".benchctl", "results"),
	}
}

// Load reads $BENCHCTL_HOME/.env.toml over the defaults, if it exists.
func Load() (EnvConfig, error) {
	cfg := DefaultEnvConfig()

	dir := os.Getenv("BENCHCTL_HOME")
	if dir == "" {
		dir = filepath.Join(home(), ".benchctl")
	}
	path := filepath.Join(dir, ".env.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse env config at %s: %w", path, err)
	}
	return cfg, nil
}

// RunOptions is the recognized option set for `start_generator`.
type RunOptions struct {
	Profile         string
	Duration        int // seconds
	SampleInterval  int // seconds
	SampleCount     int // 0 means derive from Duration/SampleInterval
	TXDescriptors   int
	RXDescriptors   int
	TXSocketMem     string
	RXSocketMem     string
	WarmupDuration  int
	ControlPort     int
	RXNumCore       int // 0 means auto
	TXNumCore       int // 0 means auto
	NICName         string
	DefaultUsername string
	DefaultPassword string
	SkipCopy        bool
	SkipTestpmd     bool
	Latency         bool
}

// DefaultRunOptions matches the defaults the CLI falls back to when a flag
// is left unset.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Duration:       30,
		SampleInterval: 5,
		ControlPort:    22022,
		WarmupDuration: 10,
	}
}

// Validate enforces sample-interval < duration and that txd/rxd are powers
// of two, returning ErrValidation on failure.
func (o RunOptions) Validate() error {
	if o.SampleInterval >= o.Duration {
		return fmt.Errorf("%w: sample-interval (%d) must be less than duration (%d)", api.ErrValidation, o.SampleInterval, o.Duration)
	}
	if o.TXDescriptors != 0 && !isPowerOfTwo(o.TXDescriptors) {
		return fmt.Errorf("%w: txd (%d) must be a power of two", api.ErrValidation, o.TXDescriptors)
	}
	if o.RXDescriptors != 0 && !isPowerOfTwo(o.RXDescriptors) {
		return fmt.Errorf("%w: rxd (%d) must be a power of two", api.ErrValidation, o.RXDescriptors)
	}
	if o.ControlPort != 0 && (o.ControlPort < 1024 || o.ControlPort > 65535) {
		return fmt.Errorf("%w: control-port (%d) must be in 1024..65535", api.ErrValidation, o.ControlPort)
	}
	if o.RXNumCore < 0 || o.TXNumCore < 0 {
		return fmt.Errorf("%w: rx_num_core/tx_num_core must be >= 1 if present", api.ErrValidation)
	}
	if o.Latency && o.RXNumCore != 0 && o.RXNumCore < 5 {
		return fmt.Errorf("%w: latency mode requires at least 5 cores", api.ErrValidation)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

// SampleCountFor returns the configured sample count, or the derived
// floor(duration/interval) default total iterations.
func (o RunOptions) SampleCountFor() int {
	if o.SampleCount > 0 {
		return o.SampleCount
	}
	if o.SampleInterval <= 0 {
		return 0
	}
	return o.Duration / o.SampleInterval
}

// AsMetadata renders every recognized start_generator option (§6) as
// metadata.txt's free-form option set, keyed the same as its CLI flag.
// Credentials (default-username/default-password) are deliberately excluded:
// metadata.txt is a plaintext artifact left on disk alongside the run.
func (o RunOptions) AsMetadata() map[string]string {
	m := map[string]string{
		"duration":        fmt.Sprintf("%d", o.Duration),
		"sample-interval": fmt.Sprintf("%d", o.SampleInterval),
		"sample-count":    fmt.Sprintf("%d", o.SampleCount),
		"warmup-duration": fmt.Sprintf("%d", o.WarmupDuration),
		"control-port":    fmt.Sprintf("%d", o.ControlPort),
		"rx-num-core":     fmt.Sprintf("%d", o.RXNumCore),
		"tx-num-core":     fmt.Sprintf("%d", o.TXNumCore),
		"skip-copy":       fmt.Sprintf("%t", o.SkipCopy),
		"skip-testpmd":    fmt.Sprintf("%t", o.SkipTestpmd),
		"latency":         fmt.Sprintf("%t", o.Latency),
	}
	if o.TXDescriptors != 0 {
		m["txd"] = fmt.Sprintf("%d", o.TXDescriptors)
	}
	if o.RXDescriptors != 0 {
		m["rxd"] = fmt.Sprintf("%d", o.RXDescriptors)
	}
	if o.TXSocketMem != "" {
		m["tx-socket-mem"] = o.TXSocketMem
	}
	if o.RXSocketMem != "" {
		m["rx-socket-mem"] = o.RXSocketMem
	}
	if o.NICName != "" {
		m["nic-name"] = o.NICName
	}
	return m
}
