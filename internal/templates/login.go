package templates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/runmanager"
)

var loginSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"startUrl":    map[string]any{"type": "string"},
		"sessionId":   map[string]any{"type": "string"},
		"credentials": map[string]any{"type": "object"},
		"fields":      map[string]any{"type": "object"},
		"successIndicator": map[string]any{"type": "object"},
	},
	"required": []string{"startUrl", "credentials", "fields", "successIndicator"},
}

type loginInput struct {
	StartURL       string
	SessionID      string // optional: reuse a caller-supplied session
	Username       string
	Password       string
	FieldsMode     string // selector|semantic
	UsernameField  string
	PasswordField  string
	SubmitField    string
	IndicatorType  string // stable|selector|urlPattern
	IndicatorValue string
}

func parseLoginInput(m map[string]any) (loginInput, error) {
	startURL, ok := m["startUrl"].(string)
	if !ok || startURL == "" {
		return loginInput{}, errs.New(errs.InvalidParameter, "startUrl: required non-empty string")
	}
	creds, ok := m["credentials"].(map[string]any)
	if !ok {
		return loginInput{}, errs.New(errs.InvalidParameter, "credentials: required object")
	}
	username, _ := creds["username"].(string)
	password, _ := creds["password"].(string)
	if username == "" || password == "" {
		return loginInput{}, errs.New(errs.InvalidParameter, "credentials: username and password are required")
	}
	fields, ok := m["fields"].(map[string]any)
	if !ok {
		return loginInput{}, errs.New(errs.InvalidParameter, "fields: required object")
	}
	mode, _ := fields["mode"].(string)
	if mode != "selector" && mode != "semantic" {
		return loginInput{}, errs.New(errs.InvalidParameter, "fields.mode: must be \"selector\" or \"semantic\"")
	}
	userField, _ := fields["username"].(string)
	passField, _ := fields["password"].(string)
	submitField, _ := fields["submit"].(string)
	if userField == "" || passField == "" || submitField == "" {
		return loginInput{}, errs.New(errs.InvalidParameter, "fields: username, password, and submit locators are required")
	}
	indicator, ok := m["successIndicator"].(map[string]any)
	if !ok {
		return loginInput{}, errs.New(errs.InvalidParameter, "successIndicator: required object")
	}
	indType, _ := indicator["type"].(string)
	if indType != "stable" && indType != "selector" && indType != "urlPattern" {
		return loginInput{}, errs.New(errs.InvalidParameter, "successIndicator.type: must be stable, selector, or urlPattern")
	}
	indValue, _ := indicator["value"].(string)
	if indType != "stable" && indValue == "" {
		return loginInput{}, errs.New(errs.InvalidParameter, "successIndicator.value: required for type "+indType)
	}
	sessionID, _ := m["sessionId"].(string)

	return loginInput{
		StartURL: startURL, SessionID: sessionID, Username: username, Password: password,
		FieldsMode: mode, UsernameField: userField, PasswordField: passField, SubmitField: submitField,
		IndicatorType: indType, IndicatorValue: indValue,
	}, nil
}

// LoginState describes whether the session ended up authenticated.
type LoginState string

const (
	LoginStateAuthenticated LoginState = "authenticated"
	LoginStateUnknown       LoginState = "unknown"
)

// LoginResult is the terminal result of a login_keep_session run.
type LoginResult struct {
	Success       bool       `json:"success"`
	SessionID     string     `json:"sessionId"`
	FinalURL      string     `json:"finalUrl"`
	Title         string     `json:"title"`
	LoginState    LoginState `json:"loginState"`
	CookiesSaved  bool       `json:"cookiesSaved"`
	Error         string     `json:"error,omitempty"`
}

func (e *Executor) loginKeepSession(in loginInput, reqSessionID string) runmanager.Executor {
	return func(ctx context.Context, runID string, token *runmanager.CancelToken, onProgress func(done, total int)) (any, error) {
		sessionID := in.SessionID
		if sessionID == "" {
			sessionID = reqSessionID
		}
		if sessionID == "" {
			// Session is never reaped regardless of outcome — the caller
			// may retry against the same authenticated cookie jar.
			id, err := e.sessions.Create(ctx, "")
			if err != nil {
				return nil, err
			}
			sessionID = id
		}

		tab, err := e.sessions.ActiveTab(sessionID)
		if err != nil {
			return nil, err
		}
		if err := e.urlPolicy.ValidateURL(in.StartURL); err != nil {
			return nil, err
		}
		if err := tab.Navigate(ctx, in.StartURL); err != nil {
			return LoginResult{Success: false, SessionID: sessionID, LoginState: LoginStateUnknown, Error: "navigate: " + err.Error()}, nil
		}
		_ = tab.WaitForStable(ctx, 5000)
		onProgress(1, 4)

		userSel, err := resolveField(ctx, tab, in.FieldsMode, in.UsernameField)
		if err != nil {
			return nil, errs.New(errs.TplLoginFieldNotFound, "username field: "+err.Error())
		}
		if err := tab.TypeText(ctx, userSel, in.Username); err != nil {
			return nil, errs.New(errs.TplLoginFieldNotFound, "username field: "+err.Error())
		}
		passSel, err := resolveField(ctx, tab, in.FieldsMode, in.PasswordField)
		if err != nil {
			return nil, errs.New(errs.TplLoginFieldNotFound, "password field: "+err.Error())
		}
		if err := tab.TypeText(ctx, passSel, in.Password); err != nil {
			return nil, errs.New(errs.TplLoginFieldNotFound, "password field: "+err.Error())
		}
		onProgress(2, 4)

		submitSel, err := resolveField(ctx, tab, in.FieldsMode, in.SubmitField)
		if err != nil {
			return nil, errs.New(errs.TplLoginFieldNotFound, "submit field: "+err.Error())
		}
		if err := tab.Click(ctx, submitSel); err != nil {
			return nil, errs.New(errs.TplLoginFieldNotFound, "submit field: "+err.Error())
		}
		onProgress(3, 4)

		observed := waitForIndicator(ctx, tab, in.IndicatorType, in.IndicatorValue, token)
		onProgress(4, 4)

		info, _ := tab.PageInfo(ctx)
		if !observed {
			return LoginResult{
				Success: false, SessionID: sessionID, FinalURL: info.URL, Title: info.Title,
				LoginState: LoginStateUnknown, Error: "Success indicator (" + in.IndicatorType + ") was not observed before timeout",
			}, nil
		}
		return LoginResult{
			Success: true, SessionID: sessionID, FinalURL: info.URL, Title: info.Title,
			LoginState: LoginStateAuthenticated, CookiesSaved: true,
		}, nil
	}
}

// resolveField turns a field locator into a CSS selector and confirms the
// element is present. In "selector" mode the locator is already a CSS
// selector; in "semantic" mode it is a human label matched against
// aria-label, placeholder, and name attributes.
func resolveField(ctx context.Context, tab browser.Tab, mode, locator string) (string, error) {
	selector := locator
	if mode == "semantic" {
		selector = fmt.Sprintf(`[aria-label=%q],[placeholder=%q],[name=%q]`, locator, locator, locator)
	}
	if _, err := tab.FindElement(ctx, selector); err != nil {
		return "", err
	}
	return selector, nil
}

// waitForIndicator polls for the configured success indicator, honoring
// the run's cancel token at every poll.
func waitForIndicator(ctx context.Context, tab browser.Tab, indType, value string, token *runmanager.CancelToken) bool {
	const timeout = 15 * time.Second
	deadline := time.Now().Add(timeout)

	check := func() bool {
		switch indType {
		case "stable":
			return tab.WaitForStable(ctx, 3000) == nil
		case "selector":
			_, err := tab.FindElement(ctx, value)
			return err == nil
		case "urlPattern":
			info, err := tab.PageInfo(ctx)
			return err == nil && strings.Contains(info.URL, value)
		default:
			return false
		}
	}

	for time.Now().Before(deadline) {
		if token.Canceled() {
			return false
		}
		if check() {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return false
}
