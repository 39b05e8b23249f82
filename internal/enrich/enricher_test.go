package enrich

import "testing"

func TestIdempotenceLawLeavesEnvelopeStableExceptDelta(t *testing.T) {
	e := New()
	first := e.Enrich(RawPayload{Summary: "initial state", Markdown: "# Page\ncontent"}, Options{Key: "get_page_info:run1"})
	if first.DeltaSummary == nil || first.DeltaSummary.Changes[0] != "initial snapshot" {
		t.Fatalf("expected initial snapshot delta, got %+v", first.DeltaSummary)
	}

	// Feed the already-enriched envelope back in as a raw payload.
	again := e.Enrich(RawPayload{Envelope: &first}, Options{Key: "get_page_info:run1"})
	if again.AiSummary != first.AiSummary || again.AiMarkdown != first.AiMarkdown {
		t.Fatalf("idempotence violated: fields changed across re-enrichment")
	}
	if again.DeltaSummary == nil || again.DeltaSummary.Changes[0] != "no change" {
		t.Fatalf("expected no-change delta on repeat, got %+v", again.DeltaSummary)
	}
}

func TestDeltaSummaryReportsChangeAfterSummaryDiffers(t *testing.T) {
	e := New()
	e.Enrich(RawPayload{Summary: "state A"}, Options{Key: "k"})
	second := e.Enrich(RawPayload{Summary: "state B"}, Options{Key: "k"})
	found := false
	for _, c := range second.DeltaSummary.Changes {
		if c == "summary changed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected summary changed in delta, got %+v", second.DeltaSummary.Changes)
	}
}

func TestNextActionsNormalizedAndDeduped(t *testing.T) {
	e := New()
	env := e.Enrich(RawPayload{
		NextActions: []NextAction{
			{Tool: "click", Args: map[string]any{"selector": "#go"}, Reason: "continue the flow"},
			{Tool: "click", Args: map[string]any{"selector": "#go"}, Reason: "duplicate"},
			{Tool: "screenshot", Priority: "bogus"},
		},
	}, Options{})
	if len(env.NextActions) != 2 {
		t.Fatalf("expected dedup to 2 actions, got %d", len(env.NextActions))
	}
	for _, a := range env.NextActions {
		last := a.Reason[len(a.Reason)-1]
		if last != '.' && last != '!' && last != '?' {
			t.Fatalf("reason not terminated: %q", a.Reason)
		}
		if a.Priority != "high" && a.Priority != "medium" && a.Priority != "low" {
			t.Fatalf("invalid priority: %q", a.Priority)
		}
	}
}

func TestAdaptivePolicyDowngradesOnNonTerminalPoll(t *testing.T) {
	e := New()
	env := e.Enrich(RawPayload{Markdown: "| a | b |\n|---|---|\nsome text", IsPolling: true, IsTerminal: false}, Options{AdaptivePolicy: true})
	if env.AiDetailLevel != DetailBrief {
		t.Fatalf("expected brief detail on non-terminal poll, got %s", env.AiDetailLevel)
	}
	if env.AiDetailPolicy == nil || env.AiDetailPolicy.Mode != "brief" {
		t.Fatalf("expected detail policy recorded, got %+v", env.AiDetailPolicy)
	}
}

func TestAdaptivePolicyUpgradesOnTerminalFailure(t *testing.T) {
	e := New()
	env := e.Enrich(RawPayload{Markdown: "x", IsTerminal: true, Failed: true}, Options{AdaptivePolicy: true})
	if env.AiDetailLevel != DetailFull {
		t.Fatalf("expected full detail on terminal failure, got %s", env.AiDetailLevel)
	}
}

func TestExplicitDetailLevelWins(t *testing.T) {
	e := New()
	env := e.Enrich(RawPayload{ExplicitDetail: DetailFull, IsPolling: true, IsTerminal: false}, Options{AdaptivePolicy: true})
	if env.AiDetailLevel != DetailFull {
		t.Fatalf("explicit detail should override adaptive policy, got %s", env.AiDetailLevel)
	}
}

func TestSchemaRepairGuidanceOnVerificationFailure(t *testing.T) {
	e := New()
	env := e.Enrich(RawPayload{
		Verification: &Verification{Pass: false, MissingFields: []string{"pageContent"}, TypeMismatches: []string{"title: expected string"}},
	}, Options{})
	if env.SchemaRepairGuidance == nil {
		t.Fatalf("expected schema repair guidance")
	}
	if len(env.SchemaRepairGuidance.RecommendedChecks) != 1 {
		t.Fatalf("expected one recommended check, got %+v", env.SchemaRepairGuidance.RecommendedChecks)
	}
}
