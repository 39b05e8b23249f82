package toolsurface

import (
	"context"
	"encoding/base64"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/errs"
)

func (s *Surface) registerBrowserTools() {
	s.registry.Register(newTool("create_session", "Open a new browser session.",
		objectSchema(map[string]any{}),
		s.toolCreateSession))
	s.registry.Register(newTool("close_session", "Close a browser session and all its tabs.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.toolCloseSession))
	s.registry.Register(newTool("navigate", "Navigate the active tab to a URL.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"url":       map[string]any{"type": "string"},
		}, "sessionId", "url"),
		s.withTab(s.toolNavigate)))
	s.registry.Register(newTool("click", "Click an element by selector.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
		}, "sessionId", "selector"),
		s.withTab(s.toolClick)))
	s.registry.Register(newTool("type_text", "Type text into an element.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
			"text":      map[string]any{"type": "string"},
		}, "sessionId", "selector", "text"),
		s.withTab(s.toolTypeText)))
	s.registry.Register(newTool("press_key", "Press a keyboard key.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"key":       map[string]any{"type": "string"},
		}, "sessionId", "key"),
		s.withTab(s.toolPressKey)))
	s.registry.Register(newTool("scroll", "Scroll the active tab.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"dx":        map[string]any{"type": "number"},
			"dy":        map[string]any{"type": "number"},
		}, "sessionId"),
		s.withTab(s.toolScroll)))
	s.registry.Register(newTool("select_option", "Select a dropdown option.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
			"value":     map[string]any{"type": "string"},
		}, "sessionId", "selector", "value"),
		s.withTab(s.toolSelectOption)))
	s.registry.Register(newTool("hover", "Hover over an element.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
		}, "sessionId", "selector"),
		s.withTab(s.toolHover)))
	s.registry.Register(newTool("set_value", "Set an input's value directly.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
			"value":     map[string]any{"type": "string"},
		}, "sessionId", "selector", "value"),
		s.withTab(s.toolSetValue)))
	s.registry.Register(newTool("go_back", "Navigate back in tab history.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolGoBack)))
	s.registry.Register(newTool("wait", "Wait a fixed number of milliseconds.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"ms":        map[string]any{"type": "number"},
		}, "sessionId"),
		s.withTab(s.toolWait)))
	s.registry.Register(newTool("wait_for_stable", "Wait for the page to settle (network/DOM idle).",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"timeoutMs": map[string]any{"type": "number"},
		}, "sessionId"),
		s.withTab(s.toolWaitForStable)))
	s.registry.Register(newTool("screenshot", "Capture a screenshot of the active tab.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolScreenshot)))
	s.registry.Register(newTool("execute_javascript", "Evaluate JavaScript in the page and return its JSON result.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"script":    map[string]any{"type": "string"},
		}, "sessionId", "script"),
		s.withTab(s.toolExecuteJS)))
	s.registry.Register(newTool("get_page_info", "Return the page's structural snapshot (URL, title, headings, elements).",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolGetPageInfo)))
	s.registry.Register(newTool("get_page_content", "Return the page's text or HTML content.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"mode":      map[string]any{"type": "string"},
		}, "sessionId"),
		s.withTab(s.toolGetPageContent)))
	s.registry.Register(newTool("find_element", "Find an element by selector and return its bounding box.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"query":     map[string]any{"type": "string"},
		}, "sessionId", "query"),
		s.withTab(s.toolFindElement)))
	s.registry.Register(newTool("get_dialog_info", "Return the pending JS dialog, if any.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolGetDialogInfo)))
	s.registry.Register(newTool("handle_dialog", "Accept or dismiss the pending JS dialog.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"accept":    map[string]any{"type": "boolean"},
			"text":      map[string]any{"type": "string"},
		}, "sessionId", "accept"),
		s.withTab(s.toolHandleDialog)))
	s.registry.Register(newTool("get_network_logs", "Return observed network request/response entries.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolGetNetworkLogs)))
	s.registry.Register(newTool("get_console_logs", "Return observed console log entries.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolGetConsoleLogs)))
	s.registry.Register(newTool("upload_file", "Upload a local file via a file input.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
			"path":      map[string]any{"type": "string"},
		}, "sessionId", "selector", "path"),
		s.withTab(s.toolUploadFile)))
	s.registry.Register(newTool("get_downloads", "Return completed and in-flight downloads.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.withTab(s.toolGetDownloads)))
	s.registry.Register(newTool("list_tabs", "List tab ids for a session.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.toolListTabs))
	s.registry.Register(newTool("create_tab", "Open a new tab in a session.",
		objectSchema(map[string]any{"sessionId": map[string]any{"type": "string"}}, "sessionId"),
		s.toolCreateTab))
	s.registry.Register(newTool("close_tab", "Close a tab in a session.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"tabId":     map[string]any{"type": "string"},
		}, "sessionId", "tabId"),
		s.toolCloseTab))
	s.registry.Register(newTool("switch_tab", "Make a tab the session's active tab.",
		objectSchema(map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"tabId":     map[string]any{"type": "string"},
		}, "sessionId", "tabId"),
		s.toolSwitchTab))

	s.registry.RegisterToolGroup("browser", []string{
		"create_session", "close_session", "navigate", "click", "type_text", "press_key", "scroll",
		"select_option", "hover", "set_value", "go_back", "wait", "wait_for_stable", "screenshot",
		"execute_javascript", "get_page_info", "get_page_content", "find_element", "get_dialog_info",
		"handle_dialog", "get_network_logs", "get_console_logs", "upload_file", "get_downloads",
		"list_tabs", "create_tab", "close_tab", "switch_tab",
	})
}

// withTab resolves sessionId to the active browser.Tab and rate-limits by
// session before delegating to fn.
func (s *Surface) withTab(fn func(ctx context.Context, tab browser.Tab, args map[string]any) (any, error)) handlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		sessionID, err := argString(args, "sessionId")
		if err != nil {
			return nil, err
		}
		if err := s.limiters.allow(sessionID); err != nil {
			return nil, err
		}
		tab, err := s.sessions.ActiveTab(sessionID)
		if err != nil {
			return nil, err
		}
		return fn(ctx, tab, args)
	}
}

func (s *Surface) toolCreateSession(ctx context.Context, args map[string]any) (any, error) {
	id, err := s.sessions.Create(ctx, "")
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessionId": id}, nil
}

func (s *Surface) toolCloseSession(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := argString(args, "sessionId")
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Close(sessionID); err != nil {
		return nil, err
	}
	s.limiters.forget(sessionID)
	return map[string]any{"closed": true}, nil
}

func (s *Surface) toolNavigate(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
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
	return map[string]any{"navigated": true, "url": url}, nil
}

func (s *Surface) toolClick(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	if err := tab.Click(ctx, selector); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return map[string]any{"clicked": selector}, nil
}

func (s *Surface) toolTypeText(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	text, err := argString(args, "text")
	if err != nil {
		return nil, err
	}
	if err := tab.TypeText(ctx, selector, text); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return map[string]any{"typed": true}, nil
}

func (s *Surface) toolPressKey(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	key, err := argString(args, "key")
	if err != nil {
		return nil, err
	}
	if err := tab.PressKey(ctx, key); err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"pressed": key}, nil
}

func (s *Surface) toolScroll(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	dx := argInt(args, "dx", 0)
	dy := argInt(args, "dy", 400)
	if err := tab.Scroll(ctx, dx, dy); err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"scrolled": true}, nil
}

func (s *Surface) toolSelectOption(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	value, err := argString(args, "value")
	if err != nil {
		return nil, err
	}
	if err := tab.SelectOption(ctx, selector, value); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return map[string]any{"selected": value}, nil
}

func (s *Surface) toolHover(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	if err := tab.Hover(ctx, selector); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return map[string]any{"hovered": selector}, nil
}

func (s *Surface) toolSetValue(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	value, err := argString(args, "value")
	if err != nil {
		return nil, err
	}
	if err := tab.SetValue(ctx, selector, value); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return map[string]any{"set": true}, nil
}

func (s *Surface) toolGoBack(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	if err := tab.GoBack(ctx); err != nil {
		return nil, errs.New(errs.NavigationTimeout, err.Error())
	}
	return map[string]any{"wentBack": true}, nil
}

func (s *Surface) toolWait(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	ms := argInt(args, "ms", 500)
	if err := tab.Wait(ctx, ms); err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"waitedMs": ms}, nil
}

func (s *Surface) toolWaitForStable(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	timeoutMs := argInt(args, "timeoutMs", 5000)
	if err := tab.WaitForStable(ctx, timeoutMs); err != nil {
		return nil, errs.New(errs.NavigationTimeout, err.Error())
	}
	return map[string]any{"stable": true}, nil
}

func (s *Surface) toolScreenshot(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	b, err := tab.Screenshot(ctx)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"imageBase64": base64.StdEncoding.EncodeToString(b)}, nil
}

func (s *Surface) toolExecuteJS(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	script, err := argString(args, "script")
	if err != nil {
		return nil, err
	}
	v, err := tab.EvalJS(ctx, script)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"result": v}, nil
}

func (s *Surface) toolGetPageInfo(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	info, err := tab.PageInfo(ctx)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return info, nil
}

func (s *Surface) toolGetPageContent(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	mode := argStringOpt(args, "mode", "text")
	content, err := tab.PageContent(ctx, mode)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"content": content, "mode": mode}, nil
}

func (s *Surface) toolFindElement(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	query, err := argString(args, "query")
	if err != nil {
		return nil, err
	}
	el, err := tab.FindElement(ctx, query)
	if err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return el, nil
}

func (s *Surface) toolGetDialogInfo(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	d, err := tab.DialogInfo(ctx)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	if d == nil {
		return map[string]any{"pending": false}, nil
	}
	return map[string]any{"pending": true, "dialog": d}, nil
}

func (s *Surface) toolHandleDialog(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	accept := argBool(args, "accept", true)
	text := argStringOpt(args, "text", "")
	if err := tab.HandleDialog(ctx, accept, text); err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"handled": true}, nil
}

func (s *Surface) toolGetNetworkLogs(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	logs, err := tab.NetworkLogs(ctx)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"logs": logs}, nil
}

func (s *Surface) toolGetConsoleLogs(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	logs, err := tab.ConsoleLogs(ctx)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"logs": logs}, nil
}

func (s *Surface) toolUploadFile(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	selector, err := argString(args, "selector")
	if err != nil {
		return nil, err
	}
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}
	if err := tab.UploadFile(ctx, selector, path); err != nil {
		return nil, errs.New(errs.ElementNotFound, err.Error())
	}
	return map[string]any{"uploaded": true}, nil
}

func (s *Surface) toolGetDownloads(ctx context.Context, tab browser.Tab, args map[string]any) (any, error) {
	downloads, err := tab.Downloads(ctx)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err.Error())
	}
	return map[string]any{"downloads": downloads}, nil
}

func (s *Surface) toolListTabs(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := argString(args, "sessionId")
	if err != nil {
		return nil, err
	}
	ids, err := s.sessions.ListTabs(sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tabs": ids}, nil
}

func (s *Surface) toolCreateTab(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := argString(args, "sessionId")
	if err != nil {
		return nil, err
	}
	tab, err := s.sessions.CreateTab(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tabId": tab.ID()}, nil
}

func (s *Surface) toolCloseTab(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := argString(args, "sessionId")
	if err != nil {
		return nil, err
	}
	tabID, err := argString(args, "tabId")
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CloseTab(sessionID, tabID); err != nil {
		return nil, err
	}
	return map[string]any{"closed": tabID}, nil
}

func (s *Surface) toolSwitchTab(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := argString(args, "sessionId")
	if err != nil {
		return nil, err
	}
	tabID, err := argString(args, "tabId")
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SwitchTab(sessionID, tabID); err != nil {
		return nil, err
	}
	return map[string]any{"active": tabID}, nil
}
