// Package connwatch tracks whether the services the agent depends on
// (the model provider, the database) are reachable. httpkit retries
// sub-second dial errors inside one request; connwatch covers outages
// that last minutes and reports them on the health endpoint.
//
// A Watcher probes one service. While the service is down it retries
// with exponential backoff (2s, 4s, 8s ... capped at MaxDelay); while it
// is up it polls every PollInterval.
package connwatch

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Backoff controls probe timing. Zero fields take the defaults.
type Backoff struct {
	InitialDelay time.Duration // first retry after a failure (2s)
	MaxDelay     time.Duration // backoff ceiling (60s)
	PollInterval time.Duration // check interval while healthy (60s)
	ProbeTimeout time.Duration // per-probe deadline (10s)
}

func (b Backoff) withDefaults() Backoff {
	if b.InitialDelay <= 0 {
		b.InitialDelay = 2 * time.Second
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 60 * time.Second
	}
	if b.PollInterval <= 0 {
		b.PollInterval = 60 * time.Second
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = 10 * time.Second
	}
	return b
}

// ServiceStatus is the health of one watched service.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
	Failures  int       `json:"consecutive_failures,omitempty"`
}

// Watcher monitors a single service.
type Watcher struct {
	name    string
	probeFn ProbeFunc
	backoff Backoff
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	status ServiceStatus
}

// Status returns the current health of the service.
func (w *Watcher) Status() ServiceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.InitialDelay
	for {
		if w.check(ctx) {
			delay = w.backoff.InitialDelay
			if !sleepCtx(ctx, w.backoff.PollInterval) {
				return
			}
			continue
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = min(delay*2, w.backoff.MaxDelay)
	}
}

// check probes once, records the result and logs transitions. It
// reports whether the service is up.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	err := w.probeFn(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	wasReady := w.status.Ready
	first := w.status.LastCheck.IsZero()
	w.status.LastCheck = time.Now()
	w.status.Ready = err == nil
	if err != nil {
		w.status.LastError = err.Error()
		w.status.Failures++
	} else {
		w.status.LastError = ""
		w.status.Failures = 0
	}
	failures := w.status.Failures
	w.mu.Unlock()

	switch {
	case err == nil && (first || !wasReady):
		w.logger.Info("service reachable", "service", w.name)
	case err != nil && (first || wasReady):
		w.logger.Warn("service unreachable", "service", w.name, "error", err)
	case err != nil:
		w.logger.Debug("service still unreachable", "service", w.name, "failures", failures, "error", err)
	}
	return err == nil
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Manager owns the watchers of one process.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	logger   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{watchers: make(map[string]*Watcher), logger: logger}
}

// Watch starts probing a service in the background until ctx is
// cancelled or Stop is called. The first probe runs immediately.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc, backoff Backoff) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:    name,
		probeFn: probe,
		backoff: backoff.withDefaults(),
		logger:  m.logger,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  ServiceStatus{Name: name},
	}

	m.mu.Lock()
	if old, ok := m.watchers[name]; ok {
		old.cancel()
	}
	m.watchers[name] = w
	m.mu.Unlock()

	go w.run(watchCtx)
	return w
}

// Status returns the health of every watched service.
func (m *Manager) Status() map[string]ServiceStatus {
	m.mu.RLock()
	watchers := maps.Clone(m.watchers)
	m.mu.RUnlock()

	out := make(map[string]ServiceStatus, len(watchers))
	for name, w := range watchers {
		out[name] = w.Status()
	}
	return out
}

// Healthy reports whether every watched service is ready.
func (m *Manager) Healthy() bool {
	for _, s := range m.Status() {
		if !s.Ready {
			return false
		}
	}
	return true
}

// Stop shuts down all watchers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
