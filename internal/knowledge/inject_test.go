package knowledge

import (
	"strings"
	"testing"
	"time"
)

func TestComposeInjection_EmptyCardYieldsEmptyFragment(t *testing.T) {
	if got := ComposeInjection(nil, "goal", 2000, time.Now()); got != "" {
		t.Fatalf("nil card should yield empty fragment, got %q", got)
	}
	if got := ComposeInjection(&Card{Domain: "example.com"}, "goal", 2000, time.Now()); got != "" {
		t.Fatalf("card with no patterns should yield empty fragment, got %q", got)
	}
}

func TestComposeInjection_RanksTaskIntentByRelevance(t *testing.T) {
	card := &Card{
		Domain: "shop.example.com",
		Patterns: []Pattern{
			{Kind: KindTaskIntent, Description: "checkout flow", Value: "click #checkout", Confidence: 0.9},
			{Kind: KindTaskIntent, Description: "search for product price", Value: "use #search-box", Confidence: 0.5},
		},
	}
	frag := ComposeInjection(card, "find the product price", 2000, time.Now())
	priceIdx := strings.Index(frag, "search for product price")
	checkoutIdx := strings.Index(frag, "checkout flow")
	if priceIdx == -1 || checkoutIdx == -1 {
		t.Fatalf("fragment missing expected patterns: %q", frag)
	}
	if priceIdx > checkoutIdx {
		t.Fatalf("expected the relevance-ranked price pattern first, got %q", frag)
	}
}

func TestComposeInjection_CapsTaskIntentAtThree(t *testing.T) {
	card := &Card{Domain: "example.com"}
	for i := 0; i < 5; i++ {
		card.Patterns = append(card.Patterns, Pattern{Kind: KindTaskIntent, Description: "intent", Value: "v", Confidence: 0.5})
	}
	frag := ComposeInjection(card, "goal", 4000, time.Now())
	if got := strings.Count(frag, "[task_intent]"); got != 3 {
		t.Fatalf("task_intent lines = %d, want 3", got)
	}
}

func TestComposeInjection_GlobalKindsBypassIntentCap(t *testing.T) {
	card := &Card{Domain: "example.com", Patterns: []Pattern{
		{Kind: KindLoginRequired, Description: "requires login", Value: "true"},
		{Kind: KindSPAHint, Description: "spa", Value: "true"},
	}}
	frag := ComposeInjection(card, "anything", 2000, time.Now())
	if !strings.Contains(frag, "login_required") || !strings.Contains(frag, "spa_hint") {
		t.Fatalf("global-kind patterns should always appear, got %q", frag)
	}
}

func TestComposeInjection_TruncatesToCharBudget(t *testing.T) {
	card := &Card{Domain: "example.com"}
	for i := 0; i < 100; i++ {
		card.Patterns = append(card.Patterns, Pattern{Kind: KindSelector, Description: "a very long description for pattern", Value: "#some-selector", Confidence: 0.5})
	}
	frag := ComposeInjection(card, "goal", 200, time.Now())
	if len(frag) > 200 {
		t.Fatalf("fragment length = %d, want <= 200", len(frag))
	}
	if !strings.Contains(frag, "hints, not guarantees") {
		t.Fatalf("truncated fragment should still carry the trailing caution line, got %q", frag)
	}
}
