package budget

import "testing"

func TestBudgetForKnownAndUnknownTool(t *testing.T) {
	f := New(nil)
	if got := f.BudgetFor("get_page_content"); got != 6000 {
		t.Fatalf("get_page_content budget = %d, want 6000", got)
	}
	if got := f.BudgetFor("some_unlisted_tool"); got != defaultBudget {
		t.Fatalf("unlisted tool budget = %d, want default %d", got, defaultBudget)
	}
}

func TestOverridesMergeOverDefaults(t *testing.T) {
	f := New(map[string]int{"screenshot": 50, "custom_tool": 900})
	if got := f.BudgetFor("screenshot"); got != 50 {
		t.Fatalf("override not applied, got %d", got)
	}
	if got := f.BudgetFor("get_page_info"); got != 4000 {
		t.Fatalf("unrelated default clobbered, got %d", got)
	}
	if got := f.BudgetFor("custom_tool"); got != 900 {
		t.Fatalf("new override missing, got %d", got)
	}
}

func TestFormatPrefersMarkdownThenSummaryThenFallback(t *testing.T) {
	f := New(nil)
	if got := f.Format("x", "md", "sum", "fall"); got != "md" {
		t.Fatalf("want markdown preferred, got %q", got)
	}
	if got := f.Format("x", "", "sum", "fall"); got != "sum" {
		t.Fatalf("want summary preferred over fallback, got %q", got)
	}
	if got := f.Format("x", "", "", "fall"); got != "fall" {
		t.Fatalf("want fallback used, got %q", got)
	}
}

func TestFormatTruncatesWithMarker(t *testing.T) {
	f := New(map[string]int{"t": 10})
	got := f.Format("t", "", "", "0123456789abcdef")
	if len(got) != 10 {
		t.Fatalf("truncated length = %d, want 10", len(got))
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("expected trailing ellipsis marker, got %q", got)
	}
}

func TestFormatUnderBudgetPassesThrough(t *testing.T) {
	f := New(nil)
	if got := f.Format("get_page_content", "", "", "short"); got != "short" {
		t.Fatalf("expected untouched short text, got %q", got)
	}
}
