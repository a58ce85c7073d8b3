package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jetpo/fundsync/internal/domain"
	"github.com/jetpo/fundsync/internal/ingest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockImporter struct {
	calls   atomic.Int32
	fail    bool
	mu      sync.Mutex
	sources []domain.Source
}

func (m *mockImporter) Import(_ context.Context, source domain.Source, _ int) (*ingest.Summary, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.sources = append(m.sources, source)
	m.mu.Unlock()
	summary := &ingest.Summary{Source: source, State: ingest.StateDone}
	if m.fail {
		summary.State = ingest.StateFailed
		return summary, errors.New("feed unavailable")
	}
	return summary, nil
}

type mockHook struct {
	calls atomic.Int32
	err   error
}

func (h *mockHook) Export(_ context.Context, _ *ingest.Summary) error {
	h.calls.Add(1)
	return h.err
}

func TestSyncWorkerRunsAndShutdown(t *testing.T) {
	imp := &mockImporter{}
	hook := &mockHook{}
	w := NewSyncWorker(imp, domain.SourceBoth, 50*time.Millisecond, hook)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := imp.calls.Load(); got < 2 {
		t.Errorf("import calls = %d, want >= 2", got)
	}
	if got, want := hook.calls.Load(), imp.calls.Load(); got != want {
		t.Errorf("hook calls = %d, want %d", got, want)
	}
	for _, s := range imp.sources {
		if s != domain.SourceBoth {
			t.Errorf("imported source %q, want both", s)
		}
	}
}

func TestSyncWorkerImmediateRun(t *testing.T) {
	imp := &mockImporter{}
	w := NewSyncWorker(imp, domain.SourceRecent, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for imp.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("import did not run on startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestSyncWorkerSkipsHookOnFailure(t *testing.T) {
	imp := &mockImporter{fail: true}
	hook := &mockHook{}
	w := NewSyncWorker(imp, domain.SourceRecent, 20*time.Millisecond, hook)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if imp.calls.Load() < 2 {
		t.Errorf("worker stopped after a failed import")
	}
	if got := hook.calls.Load(); got != 0 {
		t.Errorf("hook calls = %d, want 0", got)
	}
}

func TestSyncWorkerHookErrorDoesNotStopLoop(t *testing.T) {
	imp := &mockImporter{}
	hook := &mockHook{err: errors.New("sheets quota")}
	w := NewSyncWorker(imp, domain.SourceRecent, 20*time.Millisecond, hook)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if got := hook.calls.Load(); got < 2 {
		t.Errorf("hook calls = %d, want >= 2", got)
	}
}
