// Package jobmgr runs named background jobs under one parent context and
// reports how each of them ended.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, func(name string, err error) {
//	    log.Println("job", name, "ended:", err)
//	})
//
//	_ = jm.Start("maintenance", func(ctx context.Context) error {
//	    // work until ctx is cancelled
//	    return nil
//	})
//
//	// later...
//	jm.Shutdown()
//
// There is no retry and no persistence. Jobs are removed when they return.
package jobmgr

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Reporter is told when a job returns; err is nil on a clean exit.
type Reporter func(name string, err error)

// Manager is safe for concurrent use.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]context.CancelFunc
	wg       sync.WaitGroup
	reporter Reporter
}

// NewManager creates a Manager whose jobs all stop when parent is done.
// The reporter may be nil.
func NewManager(parent context.Context, reporter Reporter) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]context.CancelFunc),
		reporter: reporter,
	}
}

// Start runs fn in its own goroutine. A job with the same name must not be
// running already.
func (m *Manager) Start(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job '%s' is already running", name)
	}
	if err := m.ctx.Err(); err != nil {
		return fmt.Errorf("job '%s' not started: %w", name, err)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.jobs[name] = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer cancel()

		err := fn(ctx)

		m.mu.Lock()
		delete(m.jobs, name)
		m.mu.Unlock()

		if m.reporter != nil {
			m.reporter(name, err)
		}
	}()
	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}
	cancel()
	return nil
}

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of running jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

// Shutdown cancels every job and waits for all of them to return.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
