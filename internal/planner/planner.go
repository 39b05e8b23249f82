// Package planner maps a task spec to a plan step (template or agent
// goal), verifies a finished run's result against the task's declared
// output schema, and builds repair plans for verification failures.
package planner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/browseragent/control-plane/internal/enrich"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/templates"
)

// StepKind distinguishes the two tagged plan-step variants.
type StepKind string

const (
	StepTemplate  StepKind = "template"
	StepAgentGoal StepKind = "agent_goal"
)

// Step is one tagged plan step, carrying a stable id for event/trace
// correlation.
type Step struct {
	ID         string         `json:"id"`
	Kind       StepKind       `json:"kind"`
	TemplateID templates.ID   `json:"templateId,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Goal       string         `json:"goal,omitempty"`
	Hints      []string       `json:"hints,omitempty"`
}

// Source names how a Plan was produced, recorded on the plan_created
// event.
type Source string

const (
	SourceRule        Source = "rule"
	SourceLLMFallback Source = "llm_fallback"
)

// Plan is the ordered sequence of steps a task request resolves to.
type Plan struct {
	Steps  []Step `json:"steps"`
	Source Source `json:"source"`
}

// TaskSpec is the incoming request the Planner resolves into a Plan.
type TaskSpec struct {
	Goal         string
	Inputs       map[string]any
	OutputSchema map[string]any // optional; drives Verify
	MaxRetries   int
}

// Fallback classifies a goal the deterministic rules missed. Implemented
// by an LLM-backed adapter in the agent package; nil disables fallback.
type Fallback func(ctx context.Context, spec TaskSpec) (Step, error)

// batchKeywords is the short lexicon that signals a batch-extraction goal
// when urls are also present.
var batchKeywords = []string{"extract", "scrape", "collect", "gather", "pull", "pages"}

// compareKeywords signals multi_tab_compare phrasing.
var compareKeywords = []string{"compare", "diff", "difference", "vs", "versus"}

// Planner resolves task specs to plans.
type Planner struct {
	fallback        Fallback
	fallbackEnabled bool
}

// New builds a Planner. fallback may be nil; fallbackEnabled gates
// whether it is ever consulted.
func New(fallback Fallback, fallbackEnabled bool) *Planner {
	return &Planner{fallback: fallback, fallbackEnabled: fallbackEnabled}
}

// Plan resolves spec to a Plan via the deterministic rules, falling back
// to the optional LLM classifier only when the rules miss.
func (p *Planner) Plan(ctx context.Context, spec TaskSpec) (Plan, error) {
	if step, ok := ruleBasedStep(spec); ok {
		return Plan{Steps: []Step{step}, Source: SourceRule}, nil
	}

	if p.fallbackEnabled && p.fallback != nil {
		step, err := p.fallback(ctx, spec)
		if err == nil && step.Kind != "" {
			return Plan{Steps: []Step{step}, Source: SourceLLMFallback}, nil
		}
	}

	return Plan{Steps: []Step{{ID: "step-1", Kind: StepAgentGoal, Goal: spec.Goal}}, Source: SourceRule}, nil
}

func ruleBasedStep(spec TaskSpec) (Step, bool) {
	urls, hasURLs := extractURLs(spec.Inputs)
	goalLower := strings.ToLower(spec.Goal)

	if hasURLs && len(urls) == 2 && containsAny(goalLower, compareKeywords) {
		return Step{ID: "step-1", Kind: StepTemplate, TemplateID: templates.MultiTabCompare, Inputs: spec.Inputs}, true
	}
	if hasURLs && len(urls) >= 1 && containsAny(goalLower, batchKeywords) {
		return Step{ID: "step-1", Kind: StepTemplate, TemplateID: templates.BatchExtractPages, Inputs: spec.Inputs}, true
	}
	return Step{}, false
}

func extractURLs(inputs map[string]any) ([]string, bool) {
	raw, ok := inputs["urls"].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if s, ok := u.(string); ok && s != "" {
			urls = append(urls, s)
		}
	}
	return urls, len(urls) > 0
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Verify structurally checks result against schema: required keys must be
// present, and present keys matching a declared primitive type must match
// it.
func Verify(result any, schema map[string]any) enrich.Verification {
	if schema == nil {
		return enrich.Verification{Pass: true}
	}
	obj, err := toJSONObject(result)
	if err != nil {
		return enrich.Verification{Pass: false, MissingFields: []string{"(result is not an object)"}}
	}

	required, _ := toStringSlice(schema["required"])
	props, _ := schema["properties"].(map[string]any)

	var missing, mismatches []string
	for _, field := range required {
		if _, ok := obj[field]; !ok {
			missing = append(missing, field)
		}
	}
	for field, rawPropSchema := range props {
		v, present := obj[field]
		if !present {
			continue
		}
		propSchema, _ := rawPropSchema.(map[string]any)
		wantType, _ := propSchema["type"].(string)
		if wantType == "" || jsonTypeOf(v) == wantType {
			continue
		}
		mismatches = append(mismatches, field+": expected "+wantType+", got "+jsonTypeOf(v))
	}

	return enrich.Verification{Pass: len(missing) == 0 && len(mismatches) == 0, MissingFields: missing, TypeMismatches: mismatches}
}

func toJSONObject(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func toStringSlice(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func jsonTypeOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "object"
	}
}

// RepairPlan builds a follow-up plan targeting the fields a verification
// failure reported missing or mismatched, consuming one retry from
// spec.MaxRetries (enforced by the caller, which tracks attempts made).
func RepairPlan(spec TaskSpec, verification enrich.Verification) Plan {
	if verification.Pass {
		return Plan{}
	}
	var fields []string
	fields = append(fields, verification.MissingFields...)
	fields = append(fields, verification.TypeMismatches...)

	goal := "Recover the following fields that are missing or malformed in the prior result: " + strings.Join(fields, ", ") +
		". Original goal: " + spec.Goal
	return Plan{
		Steps:  []Step{{ID: "repair-1", Kind: StepAgentGoal, Goal: goal, Hints: fields}},
		Source: SourceRule,
	}
}

// ValidateTemplateStep is a convenience the caller uses before submitting
// a template-kind step, surfacing the templates package's own validation
// error under the planner's error codes.
func ValidateTemplateStep(executor *templates.Executor, step Step) error {
	if step.Kind != StepTemplate {
		return nil
	}
	if step.TemplateID == "" {
		return errs.New(errs.InvalidParameter, "template step missing templateId")
	}
	return executor.Validate(step.TemplateID, step.Inputs)
}
