package sshpool

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/spyroot/benchctl/pkg/api"
)

// SSHDialer is the concrete remote-shell transport, grounded on the use of
// golang.org/x/crypto/ssh in the pack (CoreOS mantle's docker test runs
// commands over ssh.Client the same way).
type SSHDialer struct{}

var _ api.ShellDialer = SSHDialer{}

func (SSHDialer) Dial(ctx context.Context, host, username, password string, ka time.Duration) (api.ShellSession, error) {
	cfg := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // hypervisor hosts are trusted lab infrastructure
		Timeout:         10 * time.Second,
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(host, "22")
	}

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s failed: %w", addr, err)
	}

	sess := &sshSession{client: client, closed: make(chan struct{})}
	sess.startKeepalive(ka)
	return sess, nil
}

type sshSession struct {
	client *ssh.Client
	dead   bool
	closed chan struct{}
}

func (s *sshSession) Run(ctx context.Context, cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		s.dead = true
		return "", fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer sess.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case r := <-done:
		return string(r.out), r.err
	}
}

func (s *sshSession) Alive() bool {
	if s.dead {
		return false
	}
	_, _, err := s.client.SendRequest("keepalive@benchctl", true, nil)
	if err != nil {
		s.dead = true
		return false
	}
	return true
}

func (s *sshSession) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}
	return s.client.Close()
}

func (s *sshSession) startKeepalive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-t.C:
				s.Alive()
			}
		}
	}()
}
