// Package agent implements the Agent Loop: an iterative
// reason-act cycle over the Tool Surface, backed by the Conversation
// Manager, Tool-Usage Tracker, Content-Budget Formatter, Result Enricher,
// and Recovery Policy. One Loop instance drives one agent_goal run.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/browseragent/control-plane/internal/budget"
	"github.com/browseragent/control-plane/internal/conversation"
	"github.com/browseragent/control-plane/internal/enrich"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/providers"
	"github.com/browseragent/control-plane/internal/recovery"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/tools"
	"github.com/browseragent/control-plane/internal/tracker"
	"github.com/browseragent/control-plane/internal/tracing"
	"github.com/browseragent/control-plane/pkg/protocol"
)

// pollingTools are exempt from maxToolCalls accounting so a template-
// driven agent waiting on get_task_run never exhausts its budget.
var pollingTools = map[string]bool{"get_task_run": true}

// toolPhase maps a tool name to the progress phase it represents.
var toolPhase = map[string]string{
	"navigate": "navigating", "go_back": "navigating", "create_session": "navigating",
	"get_page_info": "observing", "get_page_content": "observing", "find_element": "observing",
	"screenshot": "observing", "get_network_logs": "observing", "get_console_logs": "observing",
	"click": "acting", "type_text": "acting", "press_key": "acting", "scroll": "acting",
	"select_option": "acting", "hover": "acting", "set_value": "acting", "handle_dialog": "acting",
	"fill_form": "acting", "click_and_wait": "acting",
	"run_task_template": "extracting", "navigate_and_extract": "extracting", "get_artifact": "extracting",
}

// Config bounds one Loop.
type Config struct {
	Provider             providers.Provider
	Model                string
	Tools                *tools.Registry
	MaxIterations        int
	MaxConsecutiveErrors int
	MaxToolCalls         int
	MaxDurationMs        int64
	Conversation         conversation.Config
	Budget               *budget.Formatter
	Enricher             *enrich.Enricher
	TraceCollector       *tracing.Collector
	OnEvent              func(protocol.AgentEvent)
	Log                  *slog.Logger
}

// Loop drives one agent_goal run to completion.
type Loop struct {
	provider   providers.Provider
	model      string
	registry   *tools.Registry
	maxIter    int
	maxErrors  int
	maxCalls   int
	maxDur     time.Duration
	convCfg    conversation.Config
	formatter  *budget.Formatter
	enricher   *enrich.Enricher
	trace      *tracing.Collector
	onEvent    func(protocol.AgentEvent)
	log        *slog.Logger
}

// New builds a Loop from cfg, filling documented defaults for zero
// values.
func New(cfg Config) *Loop {
	l := &Loop{
		provider:  cfg.Provider,
		model:     cfg.Model,
		registry:  cfg.Tools,
		maxIter:   cfg.MaxIterations,
		maxErrors: cfg.MaxConsecutiveErrors,
		maxCalls:  cfg.MaxToolCalls,
		maxDur:    time.Duration(cfg.MaxDurationMs) * time.Millisecond,
		convCfg:   cfg.Conversation,
		formatter: cfg.Budget,
		enricher:  cfg.Enricher,
		trace:     cfg.TraceCollector,
		onEvent:   cfg.OnEvent,
		log:       cfg.Log,
	}
	if l.maxIter <= 0 {
		l.maxIter = 20
	}
	if l.maxErrors <= 0 {
		l.maxErrors = 3
	}
	if l.maxCalls <= 0 {
		l.maxCalls = 200
	}
	if l.maxDur <= 0 {
		l.maxDur = 10 * time.Minute
	}
	if l.formatter == nil {
		l.formatter = budget.New(nil)
	}
	if l.enricher == nil {
		l.enricher = enrich.New()
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// RunRequest is one agent_goal invocation.
type RunRequest struct {
	RunID              string
	Goal               string
	Hints              []string
	SystemPrompt       string
	KnowledgeInjection string // pre-composed knowledge.ComposeInjection fragment, if any
	DetailLevel        enrich.DetailLevel
	AdaptiveDetail     bool
}

// RunResult is the terminal outcome of one agent_goal run.
type RunResult struct {
	Content       string
	Iterations    int
	ToolCallCount int
	Usage         providers.Usage
}

// Run executes the reason-act loop to completion or to one of the
// terminal budget/abort conditions.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()
	conv := l.buildConversation(req)
	tr := tracker.New()

	var totalUsage providers.Usage
	var toolCalls int
	var consecutiveErrors int
	iteration := 0

	for iteration < l.maxIter {
		iteration++

		if err := checkDeadline(start, l.maxDur); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, errs.New(errs.RunCanceled, "context canceled")
		}

		l.emitProgress(req.RunID, iteration, "reasoning", progressPercent(iteration, l.maxIter, ""))

		resp, err := l.callModel(ctx, conv, req.RunID, iteration)
		if err != nil {
			return nil, fmt.Errorf("llm call failed (iteration %d): %w", iteration, err)
		}
		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			return &RunResult{Content: resp.Content, Iterations: iteration, ToolCallCount: toolCalls, Usage: totalUsage}, nil
		}

		conv.Push(conversation.Message{Role: conversation.RoleAssistant, Content: resp.Content, ToolCalls: toRefs(resp.ToolCalls)})

		for _, tc := range resp.ToolCalls {
			if !pollingTools[tc.Name] {
				toolCalls++
				if toolCalls > l.maxCalls {
					return nil, errs.New(errs.InternalError, "maxToolCalls exceeded")
				}
			}

			l.emitEvent(protocol.AgentEvent{Type: protocol.AgentEventToolCall, RunID: req.RunID, Payload: map[string]string{"name": tc.Name, "id": tc.ID}})
			l.emitProgress(req.RunID, iteration, phaseFor(tc.Name), progressPercent(iteration, l.maxIter, tc.Name))

			spanStart := time.Now()
			result := l.registry.Execute(ctx, tc.Name, tc.Arguments)
			l.emitToolSpan(ctx, spanStart, tc.Name, tc.ID, result)

			tr.Record(tracker.Record{Name: tc.Name, Args: tc.Arguments, Success: !result.IsError, ErrorCode: string(result.ErrorCode), Timestamp: time.Now()})

			l.emitEvent(protocol.AgentEvent{Type: protocol.AgentEventToolResult, RunID: req.RunID, Payload: map[string]any{"name": tc.Name, "id": tc.ID, "isError": result.IsError}})

			envelope := l.enrichResult(tc.Name, result, req)
			toolText := l.formatter.Format(tc.Name, envelope.AiMarkdown, envelope.AiSummary, fallbackText(result))
			conv.Push(conversation.Message{Role: conversation.RoleTool, Content: toolText, ToolCallID: tc.ID})

			if hint, ok := tr.DetectAny(); ok {
				conv.Push(conversation.Message{Role: conversation.RoleUser, Content: hint.Message})
			}

			if result.IsError {
				consecutiveErrors++
				decision := recovery.Decide(recovery.Input{ErrorCode: result.ErrorCode, ErrorMessage: result.Message, ToolName: tc.Name, ConsecutiveErrors: consecutiveErrors})
				switch decision.Action {
				case recovery.ActionAbort:
					return nil, errs.New(result.ErrorCode, decision.Message)
				case recovery.ActionInjectHint:
					conv.Push(conversation.Message{Role: conversation.RoleUser, Content: decision.Message})
				case recovery.ActionRetry:
					if decision.DelayMs > 0 {
						select {
						case <-time.After(time.Duration(decision.DelayMs) * time.Millisecond):
						case <-ctx.Done():
							return nil, errs.New(errs.RunCanceled, "context canceled during backoff")
						}
					}
				}
				if consecutiveErrors >= l.maxErrors {
					return nil, errs.New(errs.InternalError, "maxConsecutiveErrors exceeded")
				}
			} else {
				consecutiveErrors = 0
			}
		}
	}

	return nil, errs.New(errs.InternalError, "maxIterations exceeded")
}

// defaultSystemPrompt frames the loop for a model that has only the tool
// catalog and the goal to go on.
const defaultSystemPrompt = `You are a browser automation agent. Work toward the user's goal by calling the available tools: create or reuse a browser session, navigate, observe the page (get_page_info, get_page_content), act (click, type_text, fill_form), and extract what the goal asks for. Check results after each action. When the goal is complete, reply with the final answer and no tool calls.`

func (l *Loop) buildConversation(req RunRequest) *conversation.Manager {
	system := req.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	if req.KnowledgeInjection != "" {
		system = system + "\n\n" + req.KnowledgeInjection
	}
	goal := req.Goal
	if len(req.Hints) > 0 {
		goal += "\n\nHints:\n"
		for _, h := range req.Hints {
			goal += "- " + h + "\n"
		}
	}
	cfg := req.conversationConfig(l.convCfg)
	return conversation.New(cfg, []conversation.Message{
		{Role: conversation.RoleSystem, Content: system},
		{Role: conversation.RoleUser, Content: goal},
	})
}

// conversationConfig lets a request override the loop's default bounds;
// currently always returns the loop default, kept as a seam for future
// per-run overrides.
func (r RunRequest) conversationConfig(def conversation.Config) conversation.Config {
	return def
}

func (l *Loop) callModel(ctx context.Context, conv *conversation.Manager, runID string, iteration int) (*providers.ChatResponse, error) {
	req := providers.ChatRequest{
		Messages: toProviderMessages(conv.Messages()),
		Tools:    l.registry.ProviderDefs(),
		Model:    l.model,
		Options:  map[string]any{},
	}
	spanStart := time.Now()
	resp, err := l.provider.Chat(ctx, req)
	l.emitLLMSpan(ctx, spanStart, iteration, req.Messages, resp, err)
	return resp, err
}

func toProviderMessages(msgs []conversation.Message) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		pm := providers.Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, providers.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Args})
		}
		out = append(out, pm)
	}
	return out
}

func toRefs(calls []providers.ToolCall) []conversation.ToolCallRef {
	out := make([]conversation.ToolCallRef, 0, len(calls))
	for _, c := range calls {
		out = append(out, conversation.ToolCallRef{ID: c.ID, Name: c.Name, Args: c.Arguments})
	}
	return out
}

func (l *Loop) enrichResult(toolName string, result *tools.Result, req RunRequest) enrich.Envelope {
	summary, markdown := summarizeData(result.Data)
	raw := enrich.RawPayload{
		Summary:    summary,
		Markdown:   markdown,
		Data:       result.Data,
		IsPolling:  pollingTools[toolName],
		IsTerminal: true,
		Failed:     result.IsError,
	}
	if raw.IsPolling {
		// For a run-polling tool, terminal/failed describe the polled run,
		// not the tool call itself.
		status := polledRunStatus(result.Data)
		raw.IsTerminal = status != "" && status != "queued" && status != "running"
		raw.Failed = status == "failed"
	}
	if result.IsError {
		raw.Summary = result.Message
		raw.Markdown = result.Message
	}
	return l.enricher.Enrich(raw, enrich.Options{Key: toolName, DetailLevel: req.DetailLevel, AdaptivePolicy: req.AdaptiveDetail})
}

// polledRunStatus digs the run status out of a get_task_run payload.
func polledRunStatus(data any) string {
	switch d := data.(type) {
	case map[string]any:
		s, _ := d["status"].(string)
		return s
	case runmanager.Run:
		return string(d.Status)
	default:
		return ""
	}
}

func summarizeData(data any) (summary, markdown string) {
	if data == nil {
		return "", ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data), fmt.Sprint(data)
	}
	s := string(b)
	return s, s
}

func fallbackText(result *tools.Result) string {
	if result.IsError {
		return result.Message
	}
	b, _ := json.Marshal(result.Data)
	return string(b)
}

func phaseFor(toolName string) string {
	if p, ok := toolPhase[toolName]; ok {
		return p
	}
	return "acting"
}

// progressPercent weights iteration progress against maxIterations,
// capped at 99 until the loop reports a terminal done.
func progressPercent(iteration, maxIter int, toolName string) int {
	if maxIter <= 0 {
		return 0
	}
	pct := (iteration * 100) / maxIter
	if pct > 99 {
		pct = 99
	}
	return pct
}

func checkDeadline(start time.Time, maxDur time.Duration) error {
	if time.Since(start) > maxDur {
		return errs.New(errs.RunTimeout, "maxDurationMs exceeded")
	}
	return nil
}

func (l *Loop) emitEvent(e protocol.AgentEvent) {
	if l.onEvent != nil {
		l.onEvent(e)
	}
}

func (l *Loop) emitProgress(runID string, iteration int, phase string, percent int) {
	l.emitEvent(protocol.AgentEvent{
		Type:  protocol.AgentEventRunProgress,
		RunID: runID,
		Payload: map[string]any{"iteration": iteration, "phase": phase, "percent": percent},
	})
}
