package cluster

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth/gcp"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// clientsetPool is a fixed-size pool of Kubernetes Clientsets, adapted from
// the teacher's pkg/runner/client_pool.go: a buffered channel of ready
// connections, acquired and released by round-robin callers. Kept at the
// teacher's size of a handful of workers since topology probing is the only
// caller that fans out beyond single digits.
type clientsetPool struct {
	restConfig *rest.Config
	available  chan *kubernetes.Clientset
}

func newClientsetPool(workers int, kubeconfigPath string) (*clientsetPool, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("could not build k8s client config: %w", err)
	}

	p := &clientsetPool{
		restConfig: restConfig,
		available:  make(chan *kubernetes.Clientset, workers),
	}

	for i := 0; i < workers; i++ {
		cs, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("could not create k8s clientset: %w", err)
		}
		p.available <- cs
	}

	return p, nil
}

func (p *clientsetPool) Acquire() *kubernetes.Clientset {
	return <-p.available
}

func (p *clientsetPool) Release(cs *kubernetes.Clientset) {
	p.available <- cs
}
