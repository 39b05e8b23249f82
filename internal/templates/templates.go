// Package templates implements the closed set of Template Executor
// procedures: batch_extract_pages, login_keep_session, and
// multi_tab_compare. Each validates its input before a run is scheduled,
// then runs as a runmanager.Executor driving one or more browser tabs.
package templates

import (
	"context"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/config"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/runmanager"
)

// ID names one of the three closed templates.
type ID string

const (
	BatchExtractPages ID = "batch_extract_pages"
	LoginKeepSession  ID = "login_keep_session"
	MultiTabCompare   ID = "multi_tab_compare"
)

// Catalog entry describing one template for list_task_templates.
type Catalog struct {
	ID          ID             `json:"id"`
	Description string         `json:"description"`
	ParamsSchema map[string]any `json:"paramsSchema"`
}

// List returns the fixed catalog of templates.
func List() []Catalog {
	return []Catalog{
		{ID: BatchExtractPages, Description: "Visit each URL in a fresh tab and extract page info/content per URL.", ParamsSchema: batchSchema},
		{ID: LoginKeepSession, Description: "Log into a site and keep the authenticated session alive for follow-up tool calls.", ParamsSchema: loginSchema},
		{ID: MultiTabCompare, Description: "Snapshot multiple URLs and diff them over named fields.", ParamsSchema: compareSchema},
	}
}

// Sessions is the subset of toolsurface's SessionManager the templates
// need: create an ephemeral or caller-supplied session and (for
// login_keep_session) hand back a session id the caller can keep driving
// with ordinary browser-op tool calls.
type Sessions interface {
	Create(ctx context.Context, owningRun string) (string, error)
	ActiveTab(sessionID string) (browser.Tab, error)
	CreateTab(ctx context.Context, sessionID string) (browser.Tab, error)
	CloseIfOwnedBy(sessionID, runID string)
}

// Executor wires templates to a session manager, a URL policy, and the
// trust level gating login_keep_session.
type Executor struct {
	sessions   Sessions
	urlPolicy  browser.URLPolicy
	trustLevel config.TrustLevel
}

// New builds a template Executor.
func New(sessions Sessions, urlPolicy browser.URLPolicy, trustLevel config.TrustLevel) *Executor {
	return &Executor{sessions: sessions, urlPolicy: urlPolicy, trustLevel: trustLevel}
}

// Validate checks inputs for templateID before a run id is minted,
// returning an INVALID_PARAMETER (or TRUST_LEVEL_NOT_ALLOWED for login)
// error naming the offending field.
func (e *Executor) Validate(id ID, inputs map[string]any) error {
	switch id {
	case BatchExtractPages:
		_, err := parseBatchInput(inputs)
		return err
	case LoginKeepSession:
		if e.trustLevel != config.TrustLocal {
			return errs.New(errs.TrustLevelNotAllowed, "login_keep_session requires trustLevel=local")
		}
		_, err := parseLoginInput(inputs)
		return err
	case MultiTabCompare:
		_, err := parseCompareInput(inputs)
		return err
	default:
		return errs.New(errs.TemplateNotFound, string(id))
	}
}

// TotalUnits estimates the unit-of-work count used for sync/async mode
// resolution and progress reporting.
func (e *Executor) TotalUnits(id ID, inputs map[string]any) int {
	switch id {
	case BatchExtractPages:
		if in, err := parseBatchInput(inputs); err == nil {
			return len(in.URLs)
		}
	case MultiTabCompare:
		if in, err := parseCompareInput(inputs); err == nil {
			return len(in.URLs)
		}
	case LoginKeepSession:
		return 1
	}
	return 1
}

// Build returns the runmanager.Executor for templateID, closing over the
// already-validated inputs.
func (e *Executor) Build(id ID, inputs map[string]any, sessionID string, ownsSession bool) (runmanager.Executor, error) {
	switch id {
	case BatchExtractPages:
		in, err := parseBatchInput(inputs)
		if err != nil {
			return nil, err
		}
		return e.batchExtractPages(in), nil
	case LoginKeepSession:
		in, err := parseLoginInput(inputs)
		if err != nil {
			return nil, err
		}
		return e.loginKeepSession(in, sessionID), nil
	case MultiTabCompare:
		in, err := parseCompareInput(inputs)
		if err != nil {
			return nil, err
		}
		return e.multiTabCompare(in), nil
	default:
		return nil, errs.New(errs.TemplateNotFound, string(id))
	}
}
