// Package shutdown coordinates teardown of long-running commands: watcher
// loops and TUI sessions register cleanups and get them run once, in LIFO
// order, when the command is interrupted.
package shutdown

import (
	"context"
	"sync"
	"time"

	"sidetask/internal/utils"
)

// CleanupFunc releases one resource. The context is cancelled when teardown
// exceeds the grace period.
type CleanupFunc func(ctx context.Context) error

// GracePeriod bounds how long the combined cleanups may take.
const GracePeriod = 5 * time.Second

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager collects cleanups and runs them exactly once on shutdown.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
}

// NewManager creates a shutdown manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{ctx: ctx, cancel: cancel}
}

// RegisterCleanup adds a named cleanup. Cleanups run in LIFO order, so a
// resource registered later (which may depend on earlier ones) is released
// first.
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// Shutdown cancels the manager context and runs every registered cleanup.
// Safe to call multiple times; only the first call runs anything. Cleanup
// errors are logged and never abort the remaining cleanups.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		cleanups := make([]cleanupEntry, len(m.cleanups))
		copy(cleanups, m.cleanups)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), GracePeriod)
		defer cancel()

		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i].fn(ctx); err != nil {
				utils.Warnf("shutdown: %s: %v", cleanups[i].name, err)
			}
		}
	})
}

// IsShutdown reports whether shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	select {
	case <-m.ctx.Done():
		return true
	default:
		return false
	}
}

// Context is cancelled when shutdown begins. Long-running loops should select
// on it.
func (m *Manager) Context() context.Context {
	return m.ctx
}
