// Package browser is the narrow contract the orchestrator consumes from a
// browser driver: session/tab lifecycle, navigation, DOM
// snapshot, interaction primitives, screenshot, script evaluation, and the
// dialog/download/network/console observers. go-rod is the concrete
// implementation (rod_driver.go); everything above this package talks only
// to the Driver/Session/Tab interfaces.
package browser

import (
	"context"
	"time"
)

// Rect is a bounding rectangle in page coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ElementRef is a flattened accessibility-tree node. Id is a semantic id
// injected as a DOM attribute at snapshot time, stable across reflows
// within the same page state so later addressing can use it instead of a
// fragile selector.
type ElementRef struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
	Rect  Rect   `json:"rect"`
}

// PageInfo is the structural snapshot returned by get_page_info.
type PageInfo struct {
	URL          string       `json:"url"`
	Title        string       `json:"title"`
	CanonicalURL string       `json:"canonicalUrl,omitempty"`
	Headings     []string     `json:"headings,omitempty"`
	Elements     []ElementRef `json:"elements,omitempty"`
}

// DialogInfo describes a pending JS dialog (alert/confirm/prompt/beforeunload).
type DialogInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NetworkLogEntry is one observed network request/response pair.
type NetworkLogEntry struct {
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsoleLogEntry is one observed console message.
type ConsoleLogEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DownloadEntry describes a completed or in-flight download.
type DownloadEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Path     string `json:"path,omitempty"`
	Done     bool   `json:"done"`
}

// Driver launches or attaches to a browser and mints sessions.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is one browser context (its own cookie jar), holding zero or
// more tabs. Pages are not shared across runs unless a caller supplies a
// sessionId.
type Session interface {
	ID() string
	NewTab(ctx context.Context) (Tab, error)
	Tab(id string) (Tab, bool)
	Tabs() []Tab
	CloseTab(id string) error
	Close() error
}

// Tab is a single browser tab/page.
type Tab interface {
	ID() string

	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	Wait(ctx context.Context, ms int) error
	WaitForStable(ctx context.Context, timeoutMs int) error

	Click(ctx context.Context, selector string) error
	TypeText(ctx context.Context, selector, text string) error
	PressKey(ctx context.Context, key string) error
	Scroll(ctx context.Context, dx, dy int) error
	SelectOption(ctx context.Context, selector, value string) error
	Hover(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	UploadFile(ctx context.Context, selector, path string) error

	Screenshot(ctx context.Context) ([]byte, error)
	EvalJS(ctx context.Context, script string) (any, error)

	PageInfo(ctx context.Context) (PageInfo, error)
	PageContent(ctx context.Context, mode string) (string, error)
	FindElement(ctx context.Context, query string) (*ElementRef, error)

	DialogInfo(ctx context.Context) (*DialogInfo, error)
	HandleDialog(ctx context.Context, accept bool, text string) error

	NetworkLogs(ctx context.Context) ([]NetworkLogEntry, error)
	ConsoleLogs(ctx context.Context) ([]ConsoleLogEntry, error)
	Downloads(ctx context.Context) ([]DownloadEntry, error)
}
