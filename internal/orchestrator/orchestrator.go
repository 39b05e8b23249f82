// Package orchestrator is the top-level data-flow glue: a task request
// enters the Planner; the resulting plan step
// executes via the Template Executor or the Agent Loop, both funneled
// through the Run Manager; the finished run is verified against the
// task's declared output schema; a verification failure triggers a repair
// plan while retries remain; the Knowledge Store absorbs successful
// agent_goal runs' patterns for future injection.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/browseragent/control-plane/internal/agent"
	"github.com/browseragent/control-plane/internal/enrich"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/knowledge"
	"github.com/browseragent/control-plane/internal/planner"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/templates"
	"github.com/browseragent/control-plane/internal/tracing"
	"github.com/browseragent/control-plane/pkg/protocol"
)

// LoopFactory builds a fresh agent.Loop for one agent_goal step. A
// factory (rather than a shared Loop) keeps each run's conversation and
// tool-usage tracker state isolated.
type LoopFactory func() *agent.Loop

// EventFunc receives one SSE-shaped lifecycle event for a task run. runID
// is empty for plan_created (emitted before a run id is minted).
type EventFunc func(runID string, event string, payload any)

// Options configures a new Orchestrator.
type Options struct {
	Planner   *planner.Planner
	Runs      *runmanager.Manager
	Templates *templates.Executor
	NewLoop   LoopFactory
	Knowledge *knowledge.Store // nil disables injection/recording
	OnEvent   EventFunc        // nil disables event emission
	// DetailLevel and AdaptiveDetail are handed to each agent_goal run's
	// enrichment pass.
	DetailLevel    enrich.DetailLevel
	AdaptiveDetail bool
	Log            *slog.Logger
}

// Orchestrator resolves TaskRequests to plans and drives them to a
// verified terminal run.
type Orchestrator struct {
	planner        *planner.Planner
	runs           *runmanager.Manager
	templates      *templates.Executor
	newLoop        LoopFactory
	knowledge      *knowledge.Store
	onEvent        EventFunc
	detailLevel    enrich.DetailLevel
	adaptiveDetail bool
	log            *slog.Logger
}

// New builds an Orchestrator from opts.
func New(opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = func(string, string, any) {}
	}
	return &Orchestrator{
		planner:        opts.Planner,
		runs:           opts.Runs,
		templates:      opts.Templates,
		newLoop:        opts.NewLoop,
		knowledge:      opts.Knowledge,
		onEvent:        onEvent,
		detailLevel:    opts.DetailLevel,
		adaptiveDetail: opts.AdaptiveDetail,
		log:            log,
	}
}

// Constraints bounds one task's wall-clock and step count.
type Constraints struct {
	MaxDurationMs int64
	MaxSteps      int
}

// Budget bounds one task's repair attempts and total tool calls across
// every attempt.
type Budget struct {
	MaxRetries   int
	MaxToolCalls int
}

// TaskRequest is the inbound request SubmitTask resolves and drives.
type TaskRequest struct {
	Goal         string
	Inputs       map[string]any
	OutputSchema map[string]any
	SessionID    string
	Mode         runmanager.Mode
	Constraints  Constraints
	Budget       Budget
	// OnEvent, if set, receives this call's lifecycle events instead of
	// the Orchestrator's default sink — the HTTP surface uses this to
	// demux a shared Orchestrator's events back to the one SSE stream
	// that requested them.
	OnEvent EventFunc
}

// Outcome is the terminal result of SubmitTask: the final run plus the
// verification record from the attempt that produced it.
type Outcome struct {
	Run          *runmanager.Run
	Verification enrich.Verification
	Attempts     int
	PlanSource   planner.Source
}

// SubmitTask resolves req to a plan, executes it through the Run Manager,
// verifies the terminal result against req.OutputSchema, and — while
// attempts remain within req.Budget.MaxRetries — reruns a repair plan
// targeting the fields verification reported missing or mismatched. Any
// verification failure is treated uniformly regardless of partial-success
// vs. failed run status.
func (o *Orchestrator) SubmitTask(ctx context.Context, req TaskRequest) (*Outcome, error) {
	spec := planner.TaskSpec{
		Goal:         req.Goal,
		Inputs:       req.Inputs,
		OutputSchema: req.OutputSchema,
		MaxRetries:   req.Budget.MaxRetries,
	}

	emit := o.onEvent
	if req.OnEvent != nil {
		emit = req.OnEvent
	}

	domain := domainFromInputs(req.Inputs)
	var cumulativeToolCalls int
	var run *runmanager.Run
	var verification enrich.Verification
	attempt := 0

	for {
		var plan planner.Plan
		var err error
		if attempt == 0 {
			plan, err = o.planner.Plan(ctx, spec)
		} else {
			plan = planner.RepairPlan(spec, verification)
		}
		if err != nil {
			return nil, err
		}
		emit("", protocol.SSEPlanCreated, map[string]any{"source": plan.Source, "attempt": attempt, "steps": len(plan.Steps)})

		if len(plan.Steps) == 0 {
			return &Outcome{Run: run, Verification: verification, Attempts: attempt, PlanSource: plan.Source}, nil
		}
		step := plan.Steps[0]
		emit("", protocol.SSEStepStarted, map[string]any{"stepId": step.ID, "kind": step.Kind})

		if req.Budget.MaxToolCalls > 0 && cumulativeToolCalls > req.Budget.MaxToolCalls {
			return nil, errs.New(errs.InternalError, "maxToolCalls exceeded across repair attempts")
		}

		toolCallsThisRun, runResult, err := o.runStep(ctx, req, step, domain)
		if err != nil {
			return nil, err
		}
		run = runResult
		cumulativeToolCalls += toolCallsThisRun

		verification = planner.Verify(run.Result, req.OutputSchema)
		emit(run.ID, protocol.SSEVerificationResult, verification)

		if verification.Pass {
			o.recordSuccess(domain, step, req.Goal)
			emit(run.ID, protocol.SSEDone, map[string]any{"status": run.Status})
			return &Outcome{Run: run, Verification: verification, Attempts: attempt, PlanSource: plan.Source}, nil
		}

		if attempt >= req.Budget.MaxRetries {
			emit(run.ID, protocol.SSEDone, map[string]any{"status": run.Status, "verificationFailed": true})
			return &Outcome{Run: run, Verification: verification, Attempts: attempt, PlanSource: plan.Source}, nil
		}

		attempt++
		emit(run.ID, protocol.SSERepairAttempted, map[string]any{
			"attempt": attempt, "missing": verification.MissingFields, "typeMismatches": verification.TypeMismatches,
		})
	}
}

// runStep submits one plan step as a run and waits for its terminal
// state (the caller always passes Mode sync/auto with a small enough unit
// count that repair loops stay bounded in practice; async callers should
// poll get_task_run instead of calling SubmitTask for long template runs).
func (o *Orchestrator) runStep(ctx context.Context, req TaskRequest, step planner.Step, domain string) (int, *runmanager.Run, error) {
	switch step.Kind {
	case planner.StepTemplate:
		return o.runTemplateStep(req, step)
	case planner.StepAgentGoal:
		return o.runAgentGoalStep(ctx, req, step, domain)
	default:
		return 0, nil, errs.New(errs.InvalidParameter, "unknown plan step kind: "+string(step.Kind))
	}
}

func (o *Orchestrator) runTemplateStep(req TaskRequest, step planner.Step) (int, *runmanager.Run, error) {
	if err := o.templates.Validate(step.TemplateID, step.Inputs); err != nil {
		return 0, nil, err
	}
	sessionID := req.SessionID
	ownsSession := sessionID == ""
	executor, err := o.templates.Build(step.TemplateID, step.Inputs, sessionID, ownsSession)
	if err != nil {
		return 0, nil, err
	}
	totalUnits := o.templates.TotalUnits(step.TemplateID, step.Inputs)

	run, err := o.runs.Submit(string(step.TemplateID), sessionID, ownsSession, totalUnits, executor, runmanager.SubmitOptions{
		Mode:      modeOrAuto(req.Mode),
		TimeoutMs: req.Constraints.MaxDurationMs,
	})
	if err != nil {
		return 0, nil, err
	}
	return 0, run, nil
}

func (o *Orchestrator) runAgentGoalStep(ctx context.Context, req TaskRequest, step planner.Step, domain string) (int, *runmanager.Run, error) {
	if o.newLoop == nil {
		return 0, nil, errs.New(errs.InternalError, "agent loop not configured")
	}
	loop := o.newLoop()

	injection := o.composeInjection(domain, step.Goal)

	totalUnits := req.Constraints.MaxSteps
	if totalUnits <= 0 {
		totalUnits = 20
	}

	var toolCalls int
	executor := func(ctx context.Context, runID string, token *runmanager.CancelToken, onProgress func(done, total int)) (any, error) {
		traceID, err := uuid.Parse(runID)
		if err != nil {
			traceID = uuid.New()
		}
		ctx = tracing.WithTraceID(ctx, traceID)
		result, err := loop.Run(ctx, agent.RunRequest{
			RunID:              runID,
			Goal:               step.Goal,
			Hints:              step.Hints,
			KnowledgeInjection: injection,
			DetailLevel:        o.detailLevel,
			AdaptiveDetail:     o.adaptiveDetail,
		})
		if err != nil {
			return nil, err
		}
		toolCalls = result.ToolCallCount
		onProgress(result.Iterations, totalUnits)
		return map[string]any{
			"success":    true,
			"content":    result.Content,
			"iterations": result.Iterations,
			"toolCalls":  result.ToolCallCount,
		}, nil
	}

	run, err := o.runs.Submit("agent_goal", req.SessionID, req.SessionID == "", totalUnits, executor, runmanager.SubmitOptions{
		Mode:      modeOrAuto(req.Mode),
		TimeoutMs: req.Constraints.MaxDurationMs,
	})
	if err != nil {
		return 0, nil, err
	}
	return toolCalls, run, nil
}

func (o *Orchestrator) composeInjection(domain, goal string) string {
	if o.knowledge == nil || domain == "" {
		return ""
	}
	card, ok, err := o.knowledge.GetCard(domain)
	if err != nil || !ok {
		return ""
	}
	return knowledge.ComposeInjection(card, goal, o.knowledge.InjectionBudget(), time.Now().UTC())
}

// recordSuccess folds a successful agent_goal run's goal into a
// task_intent pattern for the resolved domain.
func (o *Orchestrator) recordSuccess(domain string, step planner.Step, goal string) {
	if o.knowledge == nil || domain == "" || step.Kind != planner.StepAgentGoal {
		return
	}
	now := time.Now().UTC()
	card, ok, err := o.knowledge.GetCard(domain)
	if err != nil {
		o.log.Warn("knowledge: read card failed", "domain", domain, "error", err)
		return
	}
	if !ok {
		card = &knowledge.Card{Domain: domain, SiteType: knowledge.SiteUnknown}
	}
	pattern := knowledge.Pattern{
		Kind:        knowledge.KindTaskIntent,
		Description: truncate(goal, 120),
		Value:       "succeeded",
		Confidence:  0.6,
		UseCount:    1,
		LastUsedAt:  now,
		CreatedAt:   now,
		Source:      knowledge.SourceAgentAuto,
	}
	card.Patterns = append(card.Patterns, pattern)
	if err := o.knowledge.SaveCard(domain, *card); err != nil {
		o.log.Warn("knowledge: save card failed", "domain", domain, "error", err)
	}
}

func modeOrAuto(m runmanager.Mode) runmanager.Mode {
	if m == "" {
		return runmanager.ModeAuto
	}
	return m
}

// domainFromInputs extracts a bare hostname from the first recognizable
// URL-bearing field in inputs ("urls", "startUrl", "url"), for knowledge
// injection/recording keying. Returns "" when no URL is present or it
// fails knowledge.ValidateDomain (e.g. a numeric-IP host).
func domainFromInputs(inputs map[string]any) string {
	var candidate string
	if raw, ok := inputs["urls"].([]any); ok && len(raw) > 0 {
		if s, ok := raw[0].(string); ok {
			candidate = s
		}
	}
	if candidate == "" {
		if s, ok := inputs["startUrl"].(string); ok {
			candidate = s
		}
	}
	if candidate == "" {
		if s, ok := inputs["url"].(string); ok {
			candidate = s
		}
	}
	if candidate == "" {
		return ""
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if knowledge.ValidateDomain(host) != nil {
		return ""
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s…", s[:n])
}
