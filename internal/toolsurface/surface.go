// Package toolsurface registers the uniform tool catalog into
// a tools.Registry: browser operations over a SessionManager, task
// operations over the run manager/template executor/artifact store, and
// composite operations that expand into several browser ops inside a
// single tool call.
package toolsurface

import (
	"github.com/browseragent/control-plane/internal/artifact"
	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/config"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/templates"
	"github.com/browseragent/control-plane/internal/tools"
)

// Surface wires session/run/template/artifact state into a tools.Registry.
type Surface struct {
	registry   *tools.Registry
	sessions   *SessionManager
	urlPolicy  browser.URLPolicy
	runs       *runmanager.Manager
	artifacts  *artifact.Store
	templates  *templates.Executor
	limiters   *sessionLimiters
	trustLevel config.TrustLevel
	maxConcurrentRuns int
}

// Options configures New.
type Options struct {
	Driver          browser.Driver
	URLPolicy       browser.URLPolicy
	Runs            *runmanager.Manager
	Artifacts       *artifact.Store
	TrustLevel        config.TrustLevel
	MaxConcurrentRuns int
	RateCallsPerSec   float64
	RateBurst         int
}

// New builds a Surface and registers every tool into registry. The
// template Executor run_task_template dispatches through is built here,
// over the same SessionManager the browser tools use, so a session a
// template opens is addressable by the plain browser tools and vice
// versa.
func New(registry *tools.Registry, opts Options) *Surface {
	sessions := NewSessionManager(opts.Driver)
	s := &Surface{
		registry:   registry,
		sessions:   sessions,
		urlPolicy:  opts.URLPolicy,
		runs:       opts.Runs,
		artifacts:  opts.Artifacts,
		templates:  templates.New(sessions, opts.URLPolicy, opts.TrustLevel),
		limiters:   newSessionLimiters(opts.RateCallsPerSec, opts.RateBurst),
		trustLevel: opts.TrustLevel,
		maxConcurrentRuns: opts.MaxConcurrentRuns,
	}
	s.registerBrowserTools()
	s.registerTaskTools()
	s.registerCompositeTools()
	return s
}

// Sessions exposes the session manager, e.g. for cleanup at process
// shutdown.
func (s *Surface) Sessions() *SessionManager { return s.sessions }

// Templates exposes the template Executor wired over this Surface's
// session manager, for the orchestrator to submit template-kind plan
// steps through.
func (s *Surface) Templates() *templates.Executor { return s.templates }
