package toolsurface

import (
	"context"
	"fmt"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/errs"
)

// registerCompositeTools adds the higher-level conveniences that expand
// into several browser ops against the same tab, saving the agent loop a
// round trip per step for common sequences.
func (s *Surface) registerCompositeTools() {
	s.registry.Register(newTool("fill_form", "Fill several form fields in one call, optionally submitting.",
		objectSchema(map[string]any{
			"sessionId":      map[string]any{"type": "string"},
			"fields":         map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
			"submitSelector": map[string]any{"type": "string"},
		}, "sessionId", "fields"),
		s.withTab(s.toolFillForm)))
	s.registry.Register(newTool("click_and_wait", "Click an element, then wait for the page to settle.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
			"timeoutMs": map[string]any{"type": "number"},
		}, "sessionId", "selector"),
		s.withTab(s.toolClickAndWait)))
	s.registry.Register(newTool("navigate_and_extract", "Navigate to a URL, wait for it to settle, and return its content.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"url":       map[string]any{"type": "string"},
			"mode":      map[string]any{"type": "string"},
		}, "sessionId", "url"),
		s.withTab(s.toolNavigateAndExtract)))

	s.registry.RegisterToolGroup("composite", []string{"fill_form", "click_and_wait", "navigate_and_extract"})
}

type formField struct {
	Selector string
	Value    string
}

func parseFormFields(raw any) ([]formField, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, errs.New(errs.InvalidParameter, "fields: must be a non-empty array")
	}
	out := make([]formField, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errs.New(errs.InvalidParameter, "fields: every element must be an object")
		}
		selector, _ := m["selector"].(string)
		value, _ := m["value"].(string)
		if selector == "" {
			return nil, errs.New(errs.InvalidParameter, "fields: selector is required")
		}
		out = append(out, formField{Selector: selector, Value: value})
	}
	return out, nil
}

func (s *Surface) toolFillForm(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	fields, err := parseFormFields(args["fields"])
	if err != nil {
		return nil, err
	}
	filled := make([]string, 0, len(fields))
	for _, f := range fields {
		if err := tab.TypeText(ctx, f.Selector, f.Value); err != nil {
			return nil, errs.New(errs.ElementNotFound, fmt.Sprintf("field %s: %v", f.Selector, err))
		}
		filled = append(filled, f.Selector)
	}
	submitted := false
	if submitSelector := argStringOpt(args, "submitSelector", ""); submitSelector != "" {
		if err := tab.Click(ctx, submitSelector); err != nil {
			return nil, errs.New(errs.ElementNotFound, "submitSelector: "+err.Error())
		}
		submitted = true
		_ = tab.WaitForStable(ctx, 5000)
	}
	return map[string]any{"filled": filled, "submitted": submitted}, nil
}

func (s *Surface) toolClickAndWait(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	if err := tab.Click(ctx, selector); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	timeoutMs := argInt(args, "timeoutMs", 5000)
	stableErr := tab.WaitForStable(ctx, timeoutMs)
	info, _ := tab.PageInfo(ctx)
	return map[string]any{"clicked": selector, "settled": stableErr == nil, "url": info.URL, "title": info.Title}, nil
}

func (s *Surface) toolNavigateAndExtract(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	url, err := argString(args, "url")
	if err != nil {
		return nil, err
	}
	if err := s.urlPolicy.ValidateURLAsync(ctx, url); err != nil {
		return nil, err
	}
	if err := tab.Navigate(ctx, url); err != nil {
		return nil, errs.New(errs.NavigationTimeout, err.Error())
	}
	_ = tab.WaitForStable(ctx, 5000)

	mode := argStringOpt(args, "mode", "text")
	content, err := tab.PageContent(ctx, mode)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	info, _ := tab.PageInfo(ctx)
	return map[string]any{"url": info.URL, "title": info.Title, "content": content}, nil
}
