package sshpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spyroot/benchctl/pkg/api"
)

type fakeSession struct {
	alive bool
	id    int
}

var _ api.ShellSession = (*fakeSession)(nil)

func (f *fakeSession) Run(ctx context.Context, cmd string) (string, error) { return "", nil }
func (f *fakeSession) Alive() bool                                        { return f.alive }
func (f *fakeSession) Close() error                                       { return nil }

type fakeDialer struct {
	dials   int
	session *fakeSession
	err     error
}

var _ api.ShellDialer = (*fakeDialer)(nil)

func (d *fakeDialer) Dial(ctx context.Context, host, username, password string, ka time.Duration) (api.ShellSession, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	d.session.id = d.dials
	return d.session, nil
}

func TestGetDialsOnceAndReusesLiveSession(t *testing.T) {
	dialer := &fakeDialer{session: &fakeSession{alive: true}}
	pool := New(dialer, "u", "p")

	s1, err := pool.Get(context.Background(), "hv-1")
	assert.NoError(t, err)
	s2, err := pool.Get(context.Background(), "hv-1")
	assert.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, dialer.dials)
}

func TestGetRedialsWhenCachedSessionReportsDead(t *testing.T) {
	dead := &fakeSession{alive: false}
	dialer := &fakeDialer{session: dead}
	pool := New(dialer, "u", "p")
	pool.sessions["hv-1"] = dead

	_, err := pool.Get(context.Background(), "hv-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, dialer.dials)
}

func TestGetPropagatesDialError(t *testing.T) {
	dialer := &fakeDialer{session: &fakeSession{alive: true}, err: assert.AnError}
	pool := New(dialer, "u", "p")

	_, err := pool.Get(context.Background(), "hv-1")
	assert.Error(t, err)
}

func TestCloseAllClearsSessionsAndIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{session: &fakeSession{alive: true}}
	pool := New(dialer, "u", "p")
	_, err := pool.Get(context.Background(), "hv-1")
	assert.NoError(t, err)

	pool.CloseAll()
	assert.Empty(t, pool.sessions)
	pool.CloseAll()
}
