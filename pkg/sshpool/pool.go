// Package sshpool implements the Connection Pool: one live remote
// shell session per hypervisor, reused across the Hypervisor Sampler,
// reconnected when its transport goes dead, and closed at Controller exit.
// It is structurally the same acquire/replace idea as the teacher's
// pkg/runner/client_pool.go, but keyed by host in a map instead of a
// fixed-size channel, since callers need "Get(host) returns a live
// session" rather than round-robin from a worker-sized free list.
package sshpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spyroot/benchctl/pkg/api"
)

const keepalive = 30 * time.Second

// Pool maps host -> live ShellSession, guarded by a mutex since the
// Connection Pool is the only shared mutable state.
type Pool struct {
	mu       sync.Mutex
	dialer   api.ShellDialer
	username string
	password string
	sessions map[string]api.ShellSession
}

// New builds a Pool that dials new sessions through dialer using the given
// default credentials.
func New(dialer api.ShellDialer, username, password string) *Pool {
	return &Pool{
		dialer:   dialer,
		username: username,
		password: password,
		sessions: make(map[string]api.ShellSession),
	}
}

// Get returns a live session for host, dialing one if absent, and
// discarding + redialing one atomically if the cached session's transport
// reports dead.
func (p *Pool) Get(ctx context.Context, host string) (api.ShellSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[host]; ok {
		if s.Alive() {
			return s, nil
		}
		_ = s.Close()
		delete(p.sessions, host)
	}

	s, err := p.dialer.Dial(ctx, host, p.username, p.password, keepalive)
	if err != nil {
		return nil, fmt.Errorf("failed to dial hypervisor %s: %w", host, err)
	}
	p.sessions[host] = s
	return s, nil
}

// CloseAll tears down every pooled session; idempotent, safe to call more
// than once at Controller exit.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for host, s := range p.sessions {
		_ = s.Close()
		delete(p.sessions, host)
	}
}
