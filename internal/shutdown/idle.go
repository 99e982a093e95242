// Package shutdown signals when the server has gone idle, so scale-to-zero
// deployments can stop the machine between agent conversations.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether background work is in progress. While it returns
// true the idle timer keeps resetting.
type BusyFunc func() bool

// IdleMonitor tracks request activity and closes its shutdown channel once
// the server has seen no traffic for the configured timeout. Probe paths are
// excluded so platform health checks do not keep the machine alive.
type IdleMonitor struct {
	timeout      time.Duration
	checkEvery   time.Duration
	logger       *slog.Logger
	excludePaths []string
	busy         BusyFunc

	active       atomic.Int64
	mu           sync.RWMutex
	lastActivity time.Time

	shutdownChan chan struct{}
	stopChan     chan struct{}
}

// IdleConfig holds idle monitor configuration.
type IdleConfig struct {
	// Timeout is how long the server must be quiet before signalling.
	// Zero disables the monitor entirely.
	Timeout time.Duration
	// ExcludePaths are URL prefixes that do not count as activity.
	ExcludePaths []string
	// Busy, when set, holds off the signal while background work runs.
	Busy   BusyFunc
	Logger *slog.Logger
}

// NewIdleMonitor creates an idle monitor. With Timeout zero it is inert:
// Start and Stop are no-ops and the middleware passes requests through
// untouched.
func NewIdleMonitor(cfg IdleConfig) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &IdleMonitor{
		timeout:      cfg.Timeout,
		checkEvery:   checkInterval(cfg.Timeout),
		logger:       cfg.Logger.With("component", "idle-monitor"),
		excludePaths: cfg.ExcludePaths,
		busy:         cfg.Busy,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
		stopChan:     make(chan struct{}),
	}
	return m
}

// checkInterval picks a polling cadence responsive enough for the timeout
// without spinning. Clamped to [5s, 30s].
func checkInterval(timeout time.Duration) time.Duration {
	interval := timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	return interval
}

// Start begins watching for idle periods.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout, "exclude_paths", m.excludePaths)
	go m.run()
}

// Stop halts the monitor without signalling shutdown.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stopChan)
}

// ShutdownChan is closed once the idle timeout is reached.
func (m *IdleMonitor) ShutdownChan() <-chan struct{} {
	return m.shutdownChan
}

// Middleware tracks request activity. Requests to excluded path prefixes
// pass through without touching the timer.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		m.active.Add(1)
		m.touch()
		defer func() {
			m.active.Add(-1)
			m.touch()
		}()

		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, prefix := range m.excludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *IdleMonitor) idleFor() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.lastActivity)
}

func (m *IdleMonitor) run() {
	ticker := time.NewTicker(m.checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			busy := m.busy != nil && m.busy()
			if m.active.Load() > 0 || busy {
				// Resetting here grants a full grace period once the
				// work finishes.
				m.touch()
				continue
			}

			if idle := m.idleFor(); idle >= m.timeout {
				m.logger.Info("idle timeout reached, signalling shutdown", "idle", idle)
				close(m.shutdownChan)
				return
			}
		}
	}
}
