package templates

import (
	"context"
	"sync"
	"testing"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/config"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/runmanager"
)

// fakeTab is a scripted browser.Tab: it fails navigation for any URL in
// failNavigate, and otherwise reports a canned PageInfo/content.
type fakeTab struct {
	id           string
	failNavigate map[string]bool
	lastURL      string
}

func (t *fakeTab) ID() string { return t.id }
func (t *fakeTab) Navigate(ctx context.Context, url string) error {
	if t.failNavigate[url] {
		return errs.New(errs.NavigationTimeout, "navigation timed out: "+url)
	}
	t.lastURL = url
	return nil
}
func (t *fakeTab) GoBack(ctx context.Context) error                                      { return nil }
func (t *fakeTab) Wait(ctx context.Context, ms int) error                                 { return nil }
func (t *fakeTab) WaitForStable(ctx context.Context, timeoutMs int) error                 { return nil }
func (t *fakeTab) Click(ctx context.Context, selector string) error                       { return nil }
func (t *fakeTab) TypeText(ctx context.Context, selector, text string) error              { return nil }
func (t *fakeTab) PressKey(ctx context.Context, key string) error                         { return nil }
func (t *fakeTab) Scroll(ctx context.Context, dx, dy int) error                           { return nil }
func (t *fakeTab) SelectOption(ctx context.Context, selector, value string) error         { return nil }
func (t *fakeTab) Hover(ctx context.Context, selector string) error                       { return nil }
func (t *fakeTab) SetValue(ctx context.Context, selector, value string) error             { return nil }
func (t *fakeTab) UploadFile(ctx context.Context, selector, path string) error            { return nil }
func (t *fakeTab) Screenshot(ctx context.Context) ([]byte, error)                         { return nil, nil }
func (t *fakeTab) EvalJS(ctx context.Context, script string) (any, error)                 { return nil, nil }
func (t *fakeTab) PageInfo(ctx context.Context) (browser.PageInfo, error) {
	return browser.PageInfo{Title: "Title for " + t.lastURL, CanonicalURL: "https://example.com/canon", Headings: []string{"h1"}}, nil
}
func (t *fakeTab) PageContent(ctx context.Context, mode string) (string, error) { return "content", nil }
func (t *fakeTab) FindElement(ctx context.Context, query string) (*browser.ElementRef, error) {
	return nil, errs.New(errs.ElementNotFound, query)
}
func (t *fakeTab) DialogInfo(ctx context.Context) (*browser.DialogInfo, error) { return nil, nil }
func (t *fakeTab) HandleDialog(ctx context.Context, accept bool, text string) error {
	return nil
}
func (t *fakeTab) NetworkLogs(ctx context.Context) ([]browser.NetworkLogEntry, error) { return nil, nil }
func (t *fakeTab) ConsoleLogs(ctx context.Context) ([]browser.ConsoleLogEntry, error) { return nil, nil }
func (t *fakeTab) Downloads(ctx context.Context) ([]browser.DownloadEntry, error)     { return nil, nil }

// fakeSessions is a minimal in-memory Sessions implementation used by the
// template executors under test: Create always hands back "sess-1", tabs
// are minted on demand, and failNavigate applies to every tab it hands out.
type fakeSessions struct {
	mu           sync.Mutex
	nextID       int
	failNavigate map[string]bool
}

func newFakeSessions(failNavigate map[string]bool) *fakeSessions {
	return &fakeSessions{failNavigate: failNavigate}
}

func (s *fakeSessions) Create(ctx context.Context, owningRun string) (string, error) {
	return "sess-1", nil
}

func (s *fakeSessions) ActiveTab(sessionID string) (browser.Tab, error) {
	return &fakeTab{id: "tab-active", failNavigate: s.failNavigate}, nil
}

func (s *fakeSessions) CreateTab(ctx context.Context, sessionID string) (browser.Tab, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return &fakeTab{id: "tab-" + string(rune('a'+id)), failNavigate: s.failNavigate}, nil
}

func (s *fakeSessions) CloseIfOwnedBy(sessionID, runID string) {}

func anyURLs(urls ...string) []any {
	out := make([]any, len(urls))
	for i, u := range urls {
		out[i] = u
	}
	return out
}

func noopProgress(done, total int) {}

// --- batch_extract_pages ---

func TestBatchExtractPages_PartialSuccess(t *testing.T) {
	sessions := newFakeSessions(map[string]bool{})
	urlPolicy := browser.URLPolicy{AllowFile: true, BlockPrivate: true}
	ex := New(sessions, urlPolicy, config.TrustLocal)

	inputs := map[string]any{"urls": anyURLs("file:///tmp/article.html", "ftp://bad")}
	if err := ex.Validate(BatchExtractPages, inputs); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	exec, err := ex.Build(BatchExtractPages, inputs, "sess-1", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := exec(context.Background(), "run-1", runmanager.NewCancelToken(), noopProgress)
	if err != nil {
		t.Fatalf("executor returned error: %v", err)
	}
	batch := res.(BatchResult)
	if batch.Summary.Total != 2 || batch.Summary.Succeeded != 1 || batch.Summary.Failed != 1 {
		t.Fatalf("summary = %+v, want {2,1,1}", batch.Summary)
	}
}

func TestBatchExtractPages_RequiresNonEmptyURLs(t *testing.T) {
	ex := New(newFakeSessions(nil), browser.URLPolicy{}, config.TrustLocal)
	err := ex.Validate(BatchExtractPages, map[string]any{"urls": anyURLs()})
	if code, ok := errs.CodeOf(err); !ok || code != errs.InvalidParameter {
		t.Fatalf("want INVALID_PARAMETER, got %v", err)
	}
}

// --- multi_tab_compare ---

func TestMultiTabCompare_RejectsMoreThanTenURLs(t *testing.T) {
	ex := New(newFakeSessions(nil), browser.URLPolicy{}, config.TrustLocal)
	urls := make([]any, 11)
	for i := range urls {
		urls[i] = "https://example.com/" + string(rune('a'+i))
	}
	err := ex.Validate(MultiTabCompare, map[string]any{"urls": urls})
	if code, ok := errs.CodeOf(err); !ok || code != errs.InvalidParameter {
		t.Fatalf("want INVALID_PARAMETER for 11 urls, got %v", err)
	}
}

func TestMultiTabCompare_RequiresPageInfoForStructuralFields(t *testing.T) {
	ex := New(newFakeSessions(nil), browser.URLPolicy{}, config.TrustLocal)
	inputs := map[string]any{
		"urls":    anyURLs("https://a.example.com", "https://b.example.com"),
		"extract": map[string]any{"pageInfo": false},
		"compare": map[string]any{"fields": anyURLs("headings")},
	}
	err := ex.Validate(MultiTabCompare, inputs)
	if code, ok := errs.CodeOf(err); !ok || code != errs.InvalidParameter {
		t.Fatalf("want INVALID_PARAMETER, got %v", err)
	}
}

func TestMultiTabCompare_FewerThanTwoSuccessesYieldsNoDiffs(t *testing.T) {
	sessions := newFakeSessions(map[string]bool{"https://b.example.com": true})
	ex := New(sessions, browser.URLPolicy{}, config.TrustLocal)
	inputs := map[string]any{"urls": anyURLs("https://a.example.com", "https://b.example.com")}
	if err := ex.Validate(MultiTabCompare, inputs); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	exec, err := ex.Build(MultiTabCompare, inputs, "sess-1", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := exec(context.Background(), "run-1", runmanager.NewCancelToken(), noopProgress)
	if err != nil {
		t.Fatalf("executor error: %v", err)
	}
	cmp := res.(CompareResult)
	if len(cmp.Diffs) != 0 {
		t.Fatalf("want zero diffs with <2 successes, got %d", len(cmp.Diffs))
	}
	if cmp.Summary.Succeeded != 1 || cmp.Summary.Failed != 1 {
		t.Fatalf("summary = %+v", cmp.Summary)
	}
}

func TestMultiTabCompare_DiffsOnlyDivergentFields(t *testing.T) {
	sessions := newFakeSessions(nil)
	ex := New(sessions, browser.URLPolicy{}, config.TrustLocal)
	inputs := map[string]any{"urls": anyURLs("https://a.example.com", "https://b.example.com")}
	if err := ex.Validate(MultiTabCompare, inputs); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	exec, err := ex.Build(MultiTabCompare, inputs, "sess-1", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := exec(context.Background(), "run-1", runmanager.NewCancelToken(), noopProgress)
	if err != nil {
		t.Fatalf("executor error: %v", err)
	}
	cmp := res.(CompareResult)
	var sawTitleDiff bool
	for _, d := range cmp.Diffs {
		if d.Field == "title" {
			sawTitleDiff = true
		}
		if d.Field == "canonicalUrl" {
			t.Fatalf("canonicalUrl should not diverge across fake tabs, got diff %+v", d)
		}
	}
	if !sawTitleDiff {
		t.Fatalf("expected a title diff since fakeTab titles differ per URL, diffs=%+v", cmp.Diffs)
	}
}

// --- login_keep_session ---

func TestLoginKeepSession_RequiresLocalTrust(t *testing.T) {
	ex := New(newFakeSessions(nil), browser.URLPolicy{}, config.TrustRemote)
	err := ex.Validate(LoginKeepSession, map[string]any{
		"startUrl":    "https://example.com/login",
		"credentials": map[string]any{"username": "u", "password": "p"},
		"fields":      map[string]any{"mode": "selector"},
	})
	if code, ok := errs.CodeOf(err); !ok || code != errs.TrustLevelNotAllowed {
		t.Fatalf("want TRUST_LEVEL_NOT_ALLOWED under remote trust, got %v", err)
	}
}
