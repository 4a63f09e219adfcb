// Package connectivity tracks whether the backend is reachable. Only a real
// round-trip to the backend can bring the client online; losing the network
// takes it offline immediately.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"github.com/dmitrijs2005/logsync/internal/metrics"
)

// Prober performs the lightweight reachability query.
type Prober interface {
	Ping(ctx context.Context) error
}

// EventSource reports platform network changes: true when the network came
// up, false when it went away.
type EventSource interface {
	Watch(ctx context.Context) <-chan bool
}

type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

type Monitor struct {
	prober  Prober
	state   *syncctx.Context
	cfg     Config
	log     logging.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	seq     uint64
	applied uint64
}

func NewMonitor(p Prober, state *syncctx.Context, cfg Config, log logging.Logger, m *metrics.Metrics) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Monitor{prober: p, state: state, cfg: cfg, log: log, metrics: m}
}

func (m *Monitor) IsOnline() bool {
	return m.state.IsOnline()
}

// CheckNow probes the backend and records the result.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.prober.Ping(pctx)
	cancel()

	if ctx.Err() != nil {
		return m.IsOnline()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// a slower probe started earlier must not overwrite a newer answer
	if seq < m.applied {
		return m.IsOnline()
	}
	m.applied = seq

	online := err == nil
	if m.state.SetOnline(online) {
		if online {
			m.log.Info(ctx, "backend reachable")
		} else {
			m.log.Warn(ctx, "backend unreachable", "error", err)
		}
	}
	m.metrics.SetOnline(online)
	return online
}

// NotifyNetwork applies a platform connectivity event. Going down is
// trusted as is; coming up is verified with a probe.
func (m *Monitor) NotifyNetwork(ctx context.Context, up bool) bool {
	if up {
		return m.CheckNow(ctx)
	}

	m.mu.Lock()
	m.seq++
	m.applied = m.seq
	m.mu.Unlock()

	if m.state.SetOnline(false) {
		m.log.Warn(ctx, "network down")
	}
	m.metrics.SetOnline(false)
	return false
}

// Run probes immediately and then on every interval and platform event until
// ctx is done. events may be nil.
func (m *Monitor) Run(ctx context.Context, events EventSource) {
	var ch <-chan bool
	if events != nil {
		ch = events.Watch(ctx)
	}

	m.CheckNow(ctx)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckNow(ctx)
		case up, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			m.NotifyNetwork(ctx, up)
		case <-ctx.Done():
			return
		}
	}
}
