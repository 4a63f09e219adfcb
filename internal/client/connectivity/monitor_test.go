package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (p *fakeProber) Ping(ctx context.Context) error {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type chanSource chan bool

func (c chanSource) Watch(ctx context.Context) <-chan bool { return c }

func newMonitor(p Prober) (*Monitor, *syncctx.Context) {
	state := syncctx.New()
	m := NewMonitor(p, state, Config{ProbeInterval: time.Hour, ProbeTimeout: time.Second},
		logging.Discard(), metrics.New(prometheus.NewRegistry()))
	return m, state
}

func TestCheckNow(t *testing.T) {
	p := &fakeProber{err: errors.New("dial tcp: i/o timeout")}
	m, _ := newMonitor(p)

	assert.True(t, m.IsOnline(), "starts with an optimistic guess")
	assert.False(t, m.CheckNow(context.Background()))
	assert.False(t, m.IsOnline())

	p.set(nil)
	assert.True(t, m.CheckNow(context.Background()))
	assert.True(t, m.IsOnline())
}

func TestNotifyNetwork_DownIsImmediate(t *testing.T) {
	p := &fakeProber{}
	m, _ := newMonitor(p)

	assert.False(t, m.NotifyNetwork(context.Background(), false))
	assert.False(t, m.IsOnline())
	assert.Zero(t, p.calls.Load(), "going offline must not probe")
}

func TestNotifyNetwork_UpIsVerified(t *testing.T) {
	// captive portal: the interface is up but the backend does not answer
	p := &fakeProber{err: errors.New("tls: handshake failure")}
	m, _ := newMonitor(p)
	m.NotifyNetwork(context.Background(), false)

	assert.False(t, m.NotifyNetwork(context.Background(), true))
	assert.False(t, m.IsOnline())
	assert.EqualValues(t, 1, p.calls.Load())

	p.set(nil)
	assert.True(t, m.NotifyNetwork(context.Background(), true))
	assert.True(t, m.IsOnline())
}

func TestRun_ProbesImmediatelyAndOnEvents(t *testing.T) {
	p := &fakeProber{err: errors.New("refused")}
	m, state := newMonitor(p)

	updates, cancelSub := state.Subscribe()
	defer cancelSub()

	events := make(chanSource)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, events)
		close(done)
	}()

	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond)

	p.set(nil)
	events <- true
	require.Eventually(t, func() bool { return m.IsOnline() }, time.Second, 5*time.Millisecond)

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("expected a state notification")
	}

	cancel()
	<-done
}

func TestInterfaceWatcher_EmitsTransitions(t *testing.T) {
	var (
		mu    sync.Mutex
		calls atomic.Int32
	)
	up := true
	w := NewInterfaceWatcher(5 * time.Millisecond)
	w.interfaces = func() ([]net.Interface, error) {
		calls.Add(1)
		mu.Lock()
		defer mu.Unlock()
		ifaces := []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}
		if up {
			ifaces = append(ifaces, net.Interface{Name: "eth0", Flags: net.FlagUp})
		}
		return ifaces, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := w.Watch(ctx)
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)

	mu.Lock()
	up = false
	mu.Unlock()

	select {
	case v := <-ch:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("no down event")
	}

	mu.Lock()
	up = true
	mu.Unlock()

	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("no up event")
	}

	cancel()
	for range ch {
	}
}
