package templates

import (
	"context"
	"fmt"

	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/runmanager"
)

var batchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"urls":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"concurrency": map[string]any{"type": "number"},
		"extract": map[string]any{"type": "object", "properties": map[string]any{
			"pageInfo": map[string]any{"type": "boolean"},
			"content":  map[string]any{"type": "boolean"},
		}},
	},
	"required": []string{"urls"},
}

// ExtractOpts selects which extractors a template runs per URL.
type ExtractOpts struct {
	PageInfo bool
	Content  bool
}

type batchInput struct {
	URLs        []string
	Concurrency int
	Extract     ExtractOpts
}

func parseBatchInput(m map[string]any) (batchInput, error) {
	rawURLs, ok := m["urls"].([]any)
	if !ok || len(rawURLs) == 0 {
		return batchInput{}, errs.New(errs.InvalidParameter, "urls: must be a non-empty array")
	}
	urls := make([]string, 0, len(rawURLs))
	for _, u := range rawURLs {
		s, ok := u.(string)
		if !ok || s == "" {
			return batchInput{}, errs.New(errs.InvalidParameter, "urls: every element must be a non-empty string")
		}
		urls = append(urls, s)
	}
	in := batchInput{URLs: urls, Concurrency: 1, Extract: ExtractOpts{PageInfo: true, Content: true}}
	if c, ok := m["concurrency"].(float64); ok && c > 0 {
		in.Concurrency = int(c)
	}
	if ex, ok := m["extract"].(map[string]any); ok {
		if v, ok := ex["pageInfo"].(bool); ok {
			in.Extract.PageInfo = v
		}
		if v, ok := ex["content"].(bool); ok {
			in.Extract.Content = v
		}
	}
	return in, nil
}

// PageResult is one URL's extraction outcome in a batch_extract_pages run.
type PageResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult is the terminal result of a batch_extract_pages run.
type BatchResult struct {
	Results []PageResult      `json:"results"`
	Summary runmanager.Summary `json:"summary"`
}

// RunSummary implements the status-derivation carrier the Run Manager
// looks for.
func (r BatchResult) RunSummary() runmanager.Summary { return r.Summary }

func (e *Executor) batchExtractPages(in batchInput) runmanager.Executor {
	return func(ctx context.Context, runID string, token *runmanager.CancelToken, onProgress func(done, total int)) (any, error) {
		sessionID, err := e.sessions.Create(ctx, runID)
		if err != nil {
			return nil, err
		}
		defer e.sessions.CloseIfOwnedBy(sessionID, runID)

		results := make([]PageResult, len(in.URLs))
		sem := make(chan struct{}, max1(in.Concurrency))
		done := make(chan int, len(in.URLs))

		for i, u := range in.URLs {
			i, u := i, u
			sem <- struct{}{}
			go func() {
				defer func() { <-sem; done <- 1 }()
				results[i] = e.extractOne(ctx, sessionID, u, in.Extract, token)
			}()
		}
		completed := 0
		for range in.URLs {
			<-done
			completed++
			onProgress(completed, len(in.URLs))
			if err := token.ThrowIfCanceled(); err != nil {
				return nil, err
			}
		}

		summary := runmanager.Summary{Total: len(results)}
		for _, r := range results {
			if r.Success {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}
		return BatchResult{Results: results, Summary: summary}, nil
	}
}

func (e *Executor) extractOne(ctx context.Context, sessionID, url string, extract ExtractOpts, token *runmanager.CancelToken) PageResult {
	res := PageResult{URL: url}
	if err := token.ThrowIfCanceled(); err != nil {
		res.Error = err.Error()
		return res
	}
	if err := e.urlPolicy.ValidateURL(url); err != nil {
		res.Error = err.Error()
		return res
	}
	tab, err := e.sessions.CreateTab(ctx, sessionID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := tab.Navigate(ctx, url); err != nil {
		res.Error = fmt.Sprintf("navigate: %v", err)
		return res
	}
	_ = tab.WaitForStable(ctx, 5000)

	if extract.PageInfo {
		info, err := tab.PageInfo(ctx)
		if err != nil {
			res.Error = fmt.Sprintf("page info: %v", err)
			return res
		}
		res.Title = info.Title
	}
	if extract.Content {
		content, err := tab.PageContent(ctx, "text")
		if err != nil {
			res.Error = fmt.Sprintf("page content: %v", err)
			return res
		}
		res.Content = content
	}
	res.Success = true
	return res
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
