package orchestrator

import (
	"context"
	"testing"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/config"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/planner"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/templates"
)

// fakeTab is a no-op browser.Tab sufficient to drive batch_extract_pages
// end to end without a real browser driver.
type fakeTab struct{ id string }

func (t *fakeTab) ID() string                                              { return t.id }
func (t *fakeTab) Navigate(ctx context.Context, url string) error          { return nil }
func (t *fakeTab) GoBack(ctx context.Context) error                        { return nil }
func (t *fakeTab) Wait(ctx context.Context, ms int) error                  { return nil }
func (t *fakeTab) WaitForStable(ctx context.Context, timeoutMs int) error  { return nil }
func (t *fakeTab) Click(ctx context.Context, selector string) error        { return nil }
func (t *fakeTab) TypeText(ctx context.Context, selector, text string) error {
	return nil
}
func (t *fakeTab) PressKey(ctx context.Context, key string) error                 { return nil }
func (t *fakeTab) Scroll(ctx context.Context, dx, dy int) error                   { return nil }
func (t *fakeTab) SelectOption(ctx context.Context, selector, value string) error { return nil }
func (t *fakeTab) Hover(ctx context.Context, selector string) error               { return nil }
func (t *fakeTab) SetValue(ctx context.Context, selector, value string) error     { return nil }
func (t *fakeTab) UploadFile(ctx context.Context, selector, path string) error    { return nil }
func (t *fakeTab) Screenshot(ctx context.Context) ([]byte, error)                 { return nil, nil }
func (t *fakeTab) EvalJS(ctx context.Context, script string) (any, error)         { return nil, nil }
func (t *fakeTab) PageInfo(ctx context.Context) (browser.PageInfo, error) {
	return browser.PageInfo{Title: "Widget", CanonicalURL: "https://shop.example.com/widget"}, nil
}
func (t *fakeTab) PageContent(ctx context.Context, mode string) (string, error) {
	return "price: $9.99", nil
}
func (t *fakeTab) FindElement(ctx context.Context, query string) (*browser.ElementRef, error) {
	return nil, errs.New(errs.ElementNotFound, query)
}
func (t *fakeTab) DialogInfo(ctx context.Context) (*browser.DialogInfo, error) { return nil, nil }
func (t *fakeTab) HandleDialog(ctx context.Context, accept bool, text string) error {
	return nil
}
func (t *fakeTab) NetworkLogs(ctx context.Context) ([]browser.NetworkLogEntry, error) {
	return nil, nil
}
func (t *fakeTab) ConsoleLogs(ctx context.Context) ([]browser.ConsoleLogEntry, error) {
	return nil, nil
}
func (t *fakeTab) Downloads(ctx context.Context) ([]browser.DownloadEntry, error) { return nil, nil }

type fakeSessions struct{}

func (fakeSessions) Create(ctx context.Context, owningRun string) (string, error) { return "sess-1", nil }
func (fakeSessions) ActiveTab(sessionID string) (browser.Tab, error)              { return &fakeTab{id: "active"}, nil }
func (fakeSessions) CreateTab(ctx context.Context, sessionID string) (browser.Tab, error) {
	return &fakeTab{id: "tab"}, nil
}
func (fakeSessions) CloseIfOwnedBy(sessionID, runID string) {}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	runs := runmanager.New(4, 20, nil, nil)
	t.Cleanup(func() { runs.Dispose() })
	tmplExec := templates.New(fakeSessions{}, browser.URLPolicy{BlockPrivate: true}, config.TrustLocal)
	p := planner.New(nil, false)
	return New(Options{Planner: p, Runs: runs, Templates: tmplExec})
}

func TestSubmitTask_BatchExtractPagesVerifiesAndSucceeds(t *testing.T) {
	o := newTestOrchestrator(t)
	req := TaskRequest{
		Goal:   "extract these pages",
		Inputs: map[string]any{"urls": []any{"https://shop.example.com/widget"}},
		Mode:   runmanager.ModeSync,
		OutputSchema: map[string]any{
			"required": []any{"results", "summary"},
		},
	}
	outcome, err := o.SubmitTask(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if !outcome.Verification.Pass {
		t.Fatalf("verification = %+v, want pass", outcome.Verification)
	}
	if outcome.Run.Status != runmanager.StatusSucceeded {
		t.Fatalf("run status = %v, want succeeded", outcome.Run.Status)
	}
	if outcome.PlanSource != planner.SourceRule {
		t.Fatalf("plan source = %v, want rule", outcome.PlanSource)
	}
}

func TestSubmitTask_VerificationFailureWithNoRetriesStopsImmediately(t *testing.T) {
	// Budget.MaxRetries=0: no agent loop is configured on this test
	// orchestrator (repair plans are always agent_goal steps), so this
	// also exercises that a verification failure terminates cleanly
	// without ever needing one.
	o := newTestOrchestrator(t)
	req := TaskRequest{
		Goal:   "extract these pages",
		Inputs: map[string]any{"urls": []any{"https://shop.example.com/widget"}},
		Mode:   runmanager.ModeSync,
		OutputSchema: map[string]any{
			"required": []any{"fieldThatWillNeverExist"},
		},
		Budget: Budget{MaxRetries: 0},
	}
	outcome, err := o.SubmitTask(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if outcome.Verification.Pass {
		t.Fatalf("expected verification to fail for a field the result never carries")
	}
	if outcome.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0 (no retries budgeted)", outcome.Attempts)
	}
}

func TestSubmitTask_InvalidTemplateInputSurfacesBeforeRunCreated(t *testing.T) {
	o := newTestOrchestrator(t)
	req := TaskRequest{
		Goal: "extract these pages",
		// The planner's rule only inspects filtered string entries (one
		// valid url is enough to route to batch_extract_pages), but the
		// template's own validation rejects the non-string element.
		Inputs: map[string]any{"urls": []any{"https://shop.example.com/widget", 42}},
		Mode:   runmanager.ModeSync,
	}
	_, err := o.SubmitTask(context.Background(), req)
	if code, ok := errs.CodeOf(err); !ok || code != errs.InvalidParameter {
		t.Fatalf("want INVALID_PARAMETER, got %v", err)
	}
}
