package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type ended struct {
	mu   sync.Mutex
	errs map[string]error
}

func (e *ended) report(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[name] = err
}

func (e *ended) get(name string) (error, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	err, ok := e.errs[name]
	return err, ok
}

func TestStartStopShutdown(t *testing.T) {
	rec := &ended{errs: map[string]error{}}
	m := NewManager(context.Background(), rec.report)

	block := func(ctx context.Context) error { <-ctx.Done(); return nil }
	if err := m.Start("b", block); err != nil {
		t.Fatal(err)
	}
	if err := m.Start("a", block); err != nil {
		t.Fatal(err)
	}
	if err := m.Start("a", block); err == nil {
		t.Error("duplicate name accepted")
	}
	if got := m.Status(); got != "Running jobs: a, b" {
		t.Errorf("Status() = %q", got)
	}

	if err := m.Stop("a"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for len(m.List()) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := m.List(); len(got) != 1 || got[0] != "b" {
		t.Errorf("List() = %v", got)
	}
	if err := m.Stop("missing"); err == nil {
		t.Error("stopping an unknown job succeeded")
	}

	m.Shutdown()
	if got := m.Status(); got != "No jobs are running." {
		t.Errorf("Status() after shutdown = %q", got)
	}
	if _, ok := rec.get("b"); !ok {
		t.Error("b was not reported")
	}
	if err := m.Start("late", block); err == nil {
		t.Error("started a job after shutdown")
	}
}

func TestReportsFailure(t *testing.T) {
	rec := &ended{errs: map[string]error{}}
	m := NewManager(context.Background(), rec.report)
	boom := errors.New("boom")

	if err := m.Start("fails", func(context.Context) error { return boom }); err != nil {
		t.Fatal(err)
	}
	m.Shutdown()
	if err, ok := rec.get("fails"); !ok || !errors.Is(err, boom) {
		t.Errorf("reported %v, %v", err, ok)
	}
}

func TestParentCancelStopsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, nil)
	done := make(chan struct{})
	if err := m.Start("j", func(ctx context.Context) error { <-ctx.Done(); close(done); return nil }); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job kept running after the parent was cancelled")
	}
	m.Shutdown()
}
