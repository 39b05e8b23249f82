package runmanager

import (
	"context"
	"testing"
	"time"

	"github.com/browseragent/control-plane/internal/errs"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(4, 20, nil, nil)
	t.Cleanup(m.Dispose)
	return m
}

func TestSubmitSyncSucceeds(t *testing.T) {
	m := newTestManager(t)
	run, err := m.Submit("agent_goal", "", true, 1, func(ctx context.Context, runID string, tok *CancelToken, onProgress func(int, int)) (any, error) {
		onProgress(1, 1)
		return map[string]any{"ok": true}, nil
	}, SubmitOptions{Mode: ModeSync})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, ok := m.Get(run.ID)
	if !ok {
		t.Fatalf("run not found")
	}
	if got.Status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
}

// An executor that sleeps 5s with timeoutMs:100
// reaches failed/RUN_TIMEOUT well within a second.
func TestSubmitTimeout(t *testing.T) {
	m := newTestManager(t)
	run, err := m.Submit("agent_goal", "", true, 1, func(ctx context.Context, runID string, tok *CancelToken, onProgress func(int, int)) (any, error) {
		select {
		case <-tok.Done():
			return nil, tok.ThrowIfCanceled()
		case <-time.After(5 * time.Second):
			return map[string]any{"ok": true}, nil
		}
	}, SubmitOptions{Mode: ModeSync, TimeoutMs: 100})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, _ := m.Get(run.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Err == nil || got.Err.Code != errs.RunTimeout {
		t.Fatalf("err = %+v, want RUN_TIMEOUT", got.Err)
	}
}

func TestCancelIdempotentAndUnknown(t *testing.T) {
	m := newTestManager(t)
	if m.Cancel("does-not-exist") {
		t.Fatalf("cancel of unknown run should return false")
	}
	started := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		m.Submit("agent_goal", "", true, 1, func(ctx context.Context, runID string, tok *CancelToken, onProgress func(int, int)) (any, error) {
			started <- runID
			<-tok.Done()
			return nil, tok.ThrowIfCanceled()
		}, SubmitOptions{Mode: ModeSync})
		close(done)
	}()
	runID := <-started
	if !m.Cancel(runID) {
		t.Fatalf("first cancel should succeed")
	}
	<-done
	if m.Cancel(runID) {
		t.Fatalf("second cancel on terminal run should return false")
	}
}

func TestListTotalIndependentOfPagination(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 5; i++ {
		m.Submit("agent_goal", "", true, 1, func(ctx context.Context, runID string, tok *CancelToken, onProgress func(int, int)) (any, error) {
			return map[string]any{"ok": true}, nil
		}, SubmitOptions{Mode: ModeSync})
	}
	res := m.List(ListFilter{Limit: 2})
	if res.Total != 5 {
		t.Fatalf("total = %d, want 5", res.Total)
	}
	if len(res.Runs) != 2 {
		t.Fatalf("page len = %d, want 2", len(res.Runs))
	}
}

func TestArtifactAttachRejectedAfterTerminal(t *testing.T) {
	m := newTestManager(t)
	run, _ := m.Submit("agent_goal", "", true, 1, func(ctx context.Context, runID string, tok *CancelToken, onProgress func(int, int)) (any, error) {
		return map[string]any{"ok": true}, nil
	}, SubmitOptions{Mode: ModeSync})
	if err := m.AttachArtifact(run.ID, "artifact-1"); err == nil {
		t.Fatalf("expected error attaching artifact to terminal run")
	}
}
