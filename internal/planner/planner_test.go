package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/browseragent/control-plane/internal/enrich"
	"github.com/browseragent/control-plane/internal/templates"
)

func urls(vs ...string) map[string]any {
	raw := make([]any, len(vs))
	for i, v := range vs {
		raw[i] = v
	}
	return map[string]any{"urls": raw}
}

func TestPlan_BatchExtractPagesFromKeywordAndURLs(t *testing.T) {
	p := New(nil, false)
	spec := TaskSpec{Goal: "extract the article content from these pages", Inputs: urls("https://a.example.com")}
	plan, err := p.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Kind != StepTemplate || plan.Steps[0].TemplateID != templates.BatchExtractPages {
		t.Fatalf("plan = %+v, want a single batch_extract_pages template step", plan)
	}
	if plan.Source != SourceRule {
		t.Fatalf("source = %v, want rule", plan.Source)
	}
}

func TestPlan_MultiTabCompareFromKeywordAndTwoURLs(t *testing.T) {
	p := New(nil, false)
	spec := TaskSpec{Goal: "compare these two pages", Inputs: urls("https://a.example.com", "https://b.example.com")}
	plan, err := p.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].TemplateID != templates.MultiTabCompare {
		t.Fatalf("plan = %+v, want a single multi_tab_compare template step", plan)
	}
}

func TestPlan_FallsBackToAgentGoalWithoutURLs(t *testing.T) {
	p := New(nil, false)
	spec := TaskSpec{Goal: "find the cheapest flight to Tokyo"}
	plan, err := p.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Kind != StepAgentGoal || plan.Steps[0].Goal != spec.Goal {
		t.Fatalf("plan = %+v, want a single agent_goal step carrying the raw goal", plan)
	}
}

func TestPlan_IsDeterministic(t *testing.T) {
	p := New(nil, false)
	spec := TaskSpec{Goal: "scrape these pages for pricing", Inputs: urls("https://a.example.com", "https://b.example.com", "https://c.example.com")}
	plan1, err := p.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	plan2, err := p.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan1.Steps[0].TemplateID != plan2.Steps[0].TemplateID || plan1.Source != plan2.Source {
		t.Fatalf("plan(spec) not deterministic: %+v vs %+v", plan1, plan2)
	}
}

func TestPlan_FallbackOnlyConsultedWhenRulesMiss(t *testing.T) {
	called := false
	fallback := func(ctx context.Context, spec TaskSpec) (Step, error) {
		called = true
		return Step{ID: "step-1", Kind: StepAgentGoal, Goal: "fallback:" + spec.Goal}, nil
	}
	p := New(fallback, true)

	// A rule-matching spec should never reach the fallback.
	spec := TaskSpec{Goal: "extract pages", Inputs: urls("https://a.example.com")}
	if _, err := p.Plan(context.Background(), spec); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if called {
		t.Fatalf("fallback should not be consulted when a deterministic rule matches")
	}

	// A non-matching spec should reach it, and the plan should record the
	// llm_fallback source.
	spec2 := TaskSpec{Goal: "do something ambiguous"}
	plan, err := p.Plan(context.Background(), spec2)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !called {
		t.Fatalf("fallback should be consulted when no rule matches")
	}
	if plan.Source != SourceLLMFallback {
		t.Fatalf("source = %v, want llm_fallback", plan.Source)
	}
}

func TestPlan_FallbackErrorFallsThroughToAgentGoal(t *testing.T) {
	fallback := func(ctx context.Context, spec TaskSpec) (Step, error) {
		return Step{}, errors.New("classifier unavailable")
	}
	p := New(fallback, true)
	spec := TaskSpec{Goal: "do something ambiguous"}
	plan, err := p.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Steps[0].Kind != StepAgentGoal || plan.Source != SourceRule {
		t.Fatalf("plan = %+v, want a rule-sourced agent_goal fallback on classifier error", plan)
	}
}

func TestVerify_NilSchemaPasses(t *testing.T) {
	v := Verify(map[string]any{"anything": 1}, nil)
	if !v.Pass {
		t.Fatalf("nil schema should always pass")
	}
}

func TestVerify_MissingRequiredField(t *testing.T) {
	schema := map[string]any{"required": []any{"title", "price"}}
	v := Verify(map[string]any{"title": "Widget"}, schema)
	if v.Pass {
		t.Fatalf("expected failure for missing required field")
	}
	if len(v.MissingFields) != 1 || v.MissingFields[0] != "price" {
		t.Fatalf("missingFields = %v, want [price]", v.MissingFields)
	}
}

func TestVerify_TypeMismatch(t *testing.T) {
	schema := map[string]any{
		"required": []any{"price"},
		"properties": map[string]any{
			"price": map[string]any{"type": "number"},
		},
	}
	v := Verify(map[string]any{"price": "19.99"}, schema)
	if v.Pass {
		t.Fatalf("expected failure for type mismatch")
	}
	if len(v.TypeMismatches) != 1 {
		t.Fatalf("typeMismatches = %v, want one entry", v.TypeMismatches)
	}
}

func TestRepairPlan_EmptyWhenVerificationPasses(t *testing.T) {
	plan := RepairPlan(TaskSpec{Goal: "g"}, enrich.Verification{Pass: true})
	if len(plan.Steps) != 0 {
		t.Fatalf("expected empty repair plan when verification passed, got %+v", plan)
	}
}

func TestRepairPlan_TargetsMissingFields(t *testing.T) {
	v := enrich.Verification{Pass: false, MissingFields: []string{"price"}}
	plan := RepairPlan(TaskSpec{Goal: "find the price"}, v)
	if len(plan.Steps) != 1 || plan.Steps[0].Kind != StepAgentGoal {
		t.Fatalf("plan = %+v, want one agent_goal repair step", plan)
	}
	if len(plan.Steps[0].Hints) != 1 || plan.Steps[0].Hints[0] != "price" {
		t.Fatalf("hints = %v, want [price]", plan.Steps[0].Hints)
	}
}
