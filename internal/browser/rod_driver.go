package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver is the go-rod-backed implementation of Driver. One RodDriver
// owns one underlying Chrome process (or a remote one reached via
// ControlURL); each Session is an incognito browser context so that pages
// opened by one run never share cookies/storage with another.
type RodDriver struct {
	browser *rod.Browser
	launch  *launcher.Launcher
	log     *slog.Logger
}

// NewRodDriver launches (or attaches to) a Chrome instance per cfg.
func NewRodDriver(headless bool, binPath, controlURL string, log *slog.Logger) (*RodDriver, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &RodDriver{log: log}

	url := controlURL
	var l *launcher.Launcher
	if url == "" {
		l = launcher.New().Headless(headless)
		if binPath != "" {
			l = l.Bin(binPath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		url = u
		d.launch = l
	}

	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	d.browser = b
	return d, nil
}

// NewSession opens a fresh incognito browser context (independent cookie
// jar); pages are not shared across runs unless a caller supplies a
// sessionId.
func (d *RodDriver) NewSession(ctx context.Context) (Session, error) {
	b, err := d.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("open incognito context: %w", err)
	}
	s := &rodSession{id: newID(), browser: b, tabs: make(map[string]*rodTab), log: d.log}
	return s, nil
}

// Close tears down the underlying browser process.
func (d *RodDriver) Close() error {
	if d.browser != nil {
		_ = d.browser.Close()
	}
	if d.launch != nil {
		d.launch.Kill()
	}
	return nil
}

var idCounter int64
var idMu sync.Mutex

func newID() string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounter++
	return fmt.Sprintf("id-%d-%d", time.Now().UnixNano(), idCounter)
}

type rodSession struct {
	mu      sync.Mutex
	id      string
	browser *rod.Browser
	tabs    map[string]*rodTab
	log     *slog.Logger
}

func (s *rodSession) ID() string { return s.id }

func (s *rodSession) NewTab(ctx context.Context) (Tab, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	page = page.Context(ctx)
	t := &rodTab{id: newID(), page: page, log: s.log}
	t.watchConsole()
	t.watchNetwork()
	s.mu.Lock()
	s.tabs[t.id] = t
	s.mu.Unlock()
	return t, nil
}

func (s *rodSession) Tab(id string) (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[id]
	return t, ok
}

func (s *rodSession) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		out = append(out, t)
	}
	return out
}

func (s *rodSession) CloseTab(id string) error {
	s.mu.Lock()
	t, ok := s.tabs[id]
	delete(s.tabs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("tab %s not found", id)
	}
	return t.page.Close()
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	tabs := make([]*rodTab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.tabs = nil
	s.mu.Unlock()
	for _, t := range tabs {
		_ = t.page.Close()
	}
	return s.browser.Close()
}

type rodTab struct {
	id   string
	page *rod.Page
	log  *slog.Logger

	mu           sync.Mutex
	networkLogs  []NetworkLogEntry
	consoleLogs  []ConsoleLogEntry
	downloads    []DownloadEntry
	pendingDlg   *DialogInfo
}

func (t *rodTab) ID() string { return t.id }

func (t *rodTab) Navigate(ctx context.Context, url string) error {
	if err := t.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return t.page.Context(ctx).WaitLoad()
}

func (t *rodTab) GoBack(ctx context.Context) error {
	return t.page.Context(ctx).NavigateBack()
}

func (t *rodTab) Wait(ctx context.Context, ms int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}

func (t *rodTab) WaitForStable(ctx context.Context, timeoutMs int) error {
	return t.page.Context(ctx).WaitStable(time.Duration(timeoutMs) * time.Millisecond)
}

func (t *rodTab) Click(ctx context.Context, selector string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (t *rodTab) TypeText(ctx context.Context, selector, text string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	return el.Input(text)
}

func (t *rodTab) PressKey(ctx context.Context, key string) error {
	k, ok := keyByName[key]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return t.page.Context(ctx).Keyboard.Type(k)
}

func (t *rodTab) Scroll(ctx context.Context, dx, dy int) error {
	return t.page.Context(ctx).Mouse.Scroll(float64(dx), float64(dy), 1)
}

func (t *rodTab) SelectOption(ctx context.Context, selector, value string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	return el.Select([]string{value}, true, rod.SelectorTypeText)
}

func (t *rodTab) Hover(ctx context.Context, selector string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	return el.Hover()
}

func (t *rodTab) SetValue(ctx context.Context, selector, value string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	_, err = el.Eval(`(v) => { this.value = v; this.dispatchEvent(new Event('input', {bubbles:true})); }`, value)
	return err
}

func (t *rodTab) UploadFile(ctx context.Context, selector, path string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	return el.SetFiles([]string{path})
}

func (t *rodTab) Screenshot(ctx context.Context) ([]byte, error) {
	return t.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
}

func (t *rodTab) EvalJS(ctx context.Context, script string) (any, error) {
	res, err := t.page.Context(ctx).Eval(script)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return res.Value.Val(), nil
}

func (t *rodTab) PageInfo(ctx context.Context) (PageInfo, error) {
	p := t.page.Context(ctx)
	info, err := p.Info()
	if err != nil {
		return PageInfo{}, fmt.Errorf("page info: %w", err)
	}
	elements, _ := t.FindElements(ctx)
	return PageInfo{URL: info.URL, Title: info.Title, Elements: elements}, nil
}

// FindElements snapshots a flat accessibility-ish element list, injecting
// a stable data-agent-id attribute so later lookups by ElementRef.ID
// survive reflows within the same page state.
func (t *rodTab) FindElements(ctx context.Context) ([]ElementRef, error) {
	res, err := t.page.Context(ctx).Eval(snapshotScript)
	if err != nil {
		return nil, fmt.Errorf("snapshot elements: %w", err)
	}
	b, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, nil
	}
	var refs []ElementRef
	if err := json.Unmarshal(b, &refs); err != nil {
		return nil, nil
	}
	return refs, nil
}

const snapshotScript = `() => {
  const out = [];
  const nodes = document.querySelectorAll('a,button,input,select,textarea,[role],h1,h2,h3');
  nodes.forEach((el, i) => {
    const id = 'agent-' + i;
    el.setAttribute('data-agent-id', id);
    const r = el.getBoundingClientRect();
    out.push({
      id: id,
      role: el.getAttribute('role') || el.tagName.toLowerCase(),
      name: (el.getAttribute('aria-label') || el.innerText || el.value || '').slice(0, 120),
      state: el.disabled ? 'disabled' : 'enabled',
      rect: {x: r.x, y: r.y, w: r.width, h: r.height},
    });
  });
  return out;
}`

func (t *rodTab) PageContent(ctx context.Context, mode string) (string, error) {
	if mode == "html" {
		return t.page.Context(ctx).HTML()
	}
	res, err := t.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return res.Value.String(), nil
}

func (t *rodTab) FindElement(ctx context.Context, query string) (*ElementRef, error) {
	el, err := t.page.Context(ctx).Element(query)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", query, err)
	}
	shape, err := el.Shape()
	var rect Rect
	if err == nil && shape != nil && len(shape.Quads) > 0 {
		q := shape.Quads[0]
		rect = Rect{X: q[0], Y: q[1], W: q[4] - q[0], H: q[5] - q[1]}
	}
	text, _ := el.Text()
	return &ElementRef{ID: query, Role: "element", Name: text, Rect: rect}, nil
}

func (t *rodTab) DialogInfo(ctx context.Context) (*DialogInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingDlg, nil
}

func (t *rodTab) HandleDialog(ctx context.Context, accept bool, text string) error {
	wait, handle := t.page.Context(ctx).HandleDialog()
	go func() {
		e := wait()
		t.mu.Lock()
		t.pendingDlg = &DialogInfo{Type: string(e.Type), Message: e.Message}
		t.mu.Unlock()
		_ = handle(&proto.PageHandleJavaScriptDialog{Accept: accept, PromptText: text})
		t.mu.Lock()
		t.pendingDlg = nil
		t.mu.Unlock()
	}()
	return nil
}

func (t *rodTab) NetworkLogs(ctx context.Context) ([]NetworkLogEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]NetworkLogEntry(nil), t.networkLogs...), nil
}

func (t *rodTab) ConsoleLogs(ctx context.Context) ([]ConsoleLogEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ConsoleLogEntry(nil), t.consoleLogs...), nil
}

func (t *rodTab) Downloads(ctx context.Context) ([]DownloadEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]DownloadEntry(nil), t.downloads...), nil
}

func (t *rodTab) watchConsole() {
	go t.page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		parts := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			parts = append(parts, a.Value.String())
		}
		t.mu.Lock()
		t.consoleLogs = append(t.consoleLogs, ConsoleLogEntry{Level: string(e.Type), Text: fmt.Sprint(parts), Timestamp: time.Now()})
		t.mu.Unlock()
	})()
}

func (t *rodTab) watchNetwork() {
	go t.page.EachEvent(func(e *proto.NetworkResponseReceived) {
		t.mu.Lock()
		t.networkLogs = append(t.networkLogs, NetworkLogEntry{
			URL:       e.Response.URL,
			Status:    e.Response.Status,
			Timestamp: time.Now(),
		})
		t.mu.Unlock()
	})()
}

var keyByName = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"ArrowDown":  input.ArrowDown,
	"ArrowUp":    input.ArrowUp,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Space":      input.Space,
}
