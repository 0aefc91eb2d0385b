package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tokengate/pkg/metricsx"
)

// Pinger is anything the monitor can probe: the user store, the revocation
// store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyMonitor periodically probes the service's backing stores, logs
// when one goes down or comes back and exports the state as a gauge.
type DependencyMonitor struct {
	Deps     map[string]Pinger
	Logger   *slog.Logger
	Metrics  *metricsx.Metrics
	Interval time.Duration
	Timeout  time.Duration

	mu    sync.RWMutex
	state map[string]bool

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewDependencyMonitor creates a monitor. Non-positive interval defaults to
// 15 seconds.
func NewDependencyMonitor(deps map[string]Pinger, logger *slog.Logger, m *metricsx.Metrics, interval time.Duration) *DependencyMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DependencyMonitor{
		Deps:     deps,
		Logger:   logger,
		Metrics:  m,
		Interval: interval,
		Timeout:  2 * time.Second,
		state:    make(map[string]bool, len(deps)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the probe loop in the background until Stop.
func (m *DependencyMonitor) Start() {
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.started = true
		m.mu.Unlock()

		go m.run()
		m.Logger.Info("dependency monitor started", "interval", m.Interval)
	})
}

// Stop blocks until an in-progress probe round has finished. It is a no-op
// if the monitor was never started.
func (m *DependencyMonitor) Stop() {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return
	}

	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
		m.Logger.Info("dependency monitor stopped")
	})
}

// Healthy reports the last observed state of dep. Unknown deps are unhealthy.
func (m *DependencyMonitor) Healthy(dep string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state[dep]
}

func (m *DependencyMonitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.Probe(context.Background())

	for {
		select {
		case <-ticker.C:
			m.Probe(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Probe pings every dependency once. Each probe is independent; one slow or
// failing store doesn't affect the others' results.
func (m *DependencyMonitor) Probe(ctx context.Context) {
	var wg sync.WaitGroup
	for name, dep := range m.Deps {
		wg.Add(1)
		go func() {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, m.Timeout)
			defer cancel()

			err := dep.Ping(pctx)
			m.record(name, err)
		}()
	}
	wg.Wait()
}

func (m *DependencyMonitor) record(name string, err error) {
	up := err == nil

	m.mu.Lock()
	prev, seen := m.state[name]
	m.state[name] = up
	m.mu.Unlock()

	m.Metrics.DependencyUp(name, up)

	switch {
	case !up && (prev || !seen):
		m.Logger.Warn("dependency down", "dependency", name, "error", err)
	case up && seen && !prev:
		m.Logger.Info("dependency recovered", "dependency", name)
	}
}
