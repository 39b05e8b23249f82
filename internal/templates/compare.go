package templates

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/runmanager"
)

var compareSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"urls": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"extract": map[string]any{"type": "object"},
		"compare": map[string]any{"type": "object", "properties": map[string]any{
			"fields": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}},
	},
	"required": []string{"urls"},
}

var defaultCompareFields = []string{"title", "headings", "canonicalUrl"}

// structuralFields names comparison fields that require a DOM/element
// snapshot rather than raw text content.
var structuralFields = map[string]bool{"headings": true, "elements": true}

type compareInput struct {
	URLs    []string
	Extract ExtractOpts
	Fields  []string
}

func parseCompareInput(m map[string]any) (compareInput, error) {
	rawURLs, ok := m["urls"].([]any)
	if !ok || len(rawURLs) < 2 || len(rawURLs) > 10 {
		return compareInput{}, errs.New(errs.InvalidParameter, "urls: must contain between 2 and 10 entries")
	}
	urls := make([]string, 0, len(rawURLs))
	for _, u := range rawURLs {
		s, ok := u.(string)
		if !ok || s == "" {
			return compareInput{}, errs.New(errs.InvalidParameter, "urls: every element must be a non-empty string")
		}
		urls = append(urls, s)
	}
	in := compareInput{URLs: urls, Extract: ExtractOpts{PageInfo: true}, Fields: defaultCompareFields}
	if ex, ok := m["extract"].(map[string]any); ok {
		in.Extract.PageInfo = true
		if v, ok := ex["pageInfo"].(bool); ok {
			in.Extract.PageInfo = v
		}
		if v, ok := ex["content"].(bool); ok {
			in.Extract.Content = v
		}
	}
	if cmp, ok := m["compare"].(map[string]any); ok {
		if rawFields, ok := cmp["fields"].([]any); ok && len(rawFields) > 0 {
			fields := make([]string, 0, len(rawFields))
			for _, f := range rawFields {
				s, ok := f.(string)
				if !ok {
					return compareInput{}, errs.New(errs.InvalidParameter, "compare.fields: every element must be a string")
				}
				fields = append(fields, s)
			}
			in.Fields = fields
		}
	}
	for _, f := range in.Fields {
		if structuralFields[f] && !in.Extract.PageInfo {
			return compareInput{}, errs.New(errs.InvalidParameter, "compare.fields references "+f+" but extract.pageInfo is false")
		}
	}
	return in, nil
}

// Snapshot is one URL's captured state in a multi_tab_compare run.
type Snapshot struct {
	URL          string   `json:"url"`
	Success      bool     `json:"success"`
	Title        string   `json:"title,omitempty"`
	CanonicalURL string   `json:"canonicalUrl,omitempty"`
	Headings     []string `json:"headings,omitempty"`
	Content      string   `json:"content,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Diff reports one field's divergence across snapshots.
type Diff struct {
	Field  string         `json:"field"`
	Values map[string]any `json:"values"` // url -> field value
}

// CompareResult is the terminal result of a multi_tab_compare run.
type CompareResult struct {
	Snapshots []Snapshot         `json:"snapshots"`
	Diffs     []Diff             `json:"diffs"`
	Summary   runmanager.Summary `json:"summary"`
}

func (r CompareResult) RunSummary() runmanager.Summary { return r.Summary }

func (e *Executor) multiTabCompare(in compareInput) runmanager.Executor {
	const maxParallel = 5
	return func(ctx context.Context, runID string, token *runmanager.CancelToken, onProgress func(done, total int)) (any, error) {
		sessionID, err := e.sessions.Create(ctx, runID)
		if err != nil {
			return nil, err
		}
		defer e.sessions.CloseIfOwnedBy(sessionID, runID)

		snapshots := make([]Snapshot, len(in.URLs))
		sem := make(chan struct{}, maxParallel)
		var wg sync.WaitGroup
		var mu sync.Mutex
		completed := 0

		for i, u := range in.URLs {
			i, u := i, u
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				snapshots[i] = e.snapshotOne(ctx, sessionID, u, in.Extract)
				mu.Lock()
				completed++
				onProgress(completed, len(in.URLs))
				mu.Unlock()
			}()
		}
		wg.Wait()
		if err := token.ThrowIfCanceled(); err != nil {
			return nil, err
		}

		summary := runmanager.Summary{Total: len(snapshots)}
		succeeded := make([]Snapshot, 0, len(snapshots))
		for _, s := range snapshots {
			if s.Success {
				summary.Succeeded++
				succeeded = append(succeeded, s)
			} else {
				summary.Failed++
			}
		}

		diffs := []Diff{}
		if len(succeeded) >= 2 {
			diffs = computeDiffs(succeeded, in.Fields)
		}

		return CompareResult{Snapshots: snapshots, Diffs: diffs, Summary: summary}, nil
	}
}

func (e *Executor) snapshotOne(ctx context.Context, sessionID, url string, extract ExtractOpts) Snapshot {
	snap := Snapshot{URL: url}
	if err := e.urlPolicy.ValidateURL(url); err != nil {
		snap.Error = err.Error()
		return snap
	}
	tab, err := e.sessions.CreateTab(ctx, sessionID)
	if err != nil {
		snap.Error = err.Error()
		return snap
	}
	if err := tab.Navigate(ctx, url); err != nil {
		snap.Error = fmt.Sprintf("navigate: %v", err)
		return snap
	}
	_ = tab.WaitForStable(ctx, 5000)

	if extract.PageInfo {
		info, err := tab.PageInfo(ctx)
		if err != nil {
			snap.Error = fmt.Sprintf("page info: %v", err)
			return snap
		}
		snap.Title = info.Title
		snap.CanonicalURL = info.CanonicalURL
		snap.Headings = info.Headings
	}
	if extract.Content {
		content, err := tab.PageContent(ctx, "text")
		if err != nil {
			snap.Error = fmt.Sprintf("page content: %v", err)
			return snap
		}
		snap.Content = content
	}
	snap.Success = true
	return snap
}

func computeDiffs(snapshots []Snapshot, fields []string) []Diff {
	diffs := make([]Diff, 0, len(fields))
	for _, field := range fields {
		values := make(map[string]any, len(snapshots))
		distinct := make(map[string]bool)
		for _, s := range snapshots {
			v := fieldValue(s, field)
			values[s.URL] = v
			distinct[fmt.Sprint(v)] = true
		}
		if len(distinct) > 1 {
			diffs = append(diffs, Diff{Field: field, Values: values})
		}
	}
	return diffs
}

func fieldValue(s Snapshot, field string) any {
	switch field {
	case "title":
		return s.Title
	case "canonicalUrl":
		return s.CanonicalURL
	case "headings":
		return strings.Join(s.Headings, "|")
	case "content":
		return s.Content
	default:
		return nil
	}
}
