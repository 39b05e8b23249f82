package tracker

import "testing"

// Three identical failing click calls =>
// detectAny() yields futile_retry. Note futile_retry (N=2) is evaluated
// before exact_repeat (N=3) and both would match here; futile_retry wins
// because detectors run in spec order.
func TestThreeIdenticalFailingClicksYieldFutileRetry(t *testing.T) {
	tr := New()
	args := map[string]any{"selector": "#submit"}
	for i := 0; i < 3; i++ {
		tr.Record(Record{Name: "click", Args: args, Success: false})
	}
	hint, ok := tr.DetectAny()
	if !ok {
		t.Fatalf("expected a detector to fire")
	}
	if hint.Type != HintFutileRetry {
		t.Fatalf("hint.Type = %s, want futile_retry", hint.Type)
	}
}

func TestOscillationDetector(t *testing.T) {
	tr := New()
	a := Record{Name: "click", Args: map[string]any{"selector": "#a"}, Success: true}
	b := Record{Name: "navigate", Args: map[string]any{"url": "https://x"}, Success: true}
	for i := 0; i < 3; i++ {
		tr.Record(a)
		tr.Record(b)
	}
	hint, ok := tr.DetectAny()
	if !ok || hint.Type != HintOscillation {
		t.Fatalf("expected oscillation, got %+v ok=%v", hint, ok)
	}
}

func TestProgressStallDetector(t *testing.T) {
	tr := New()
	// Five successful observation calls with no three identical in a row,
	// so exact_repeat (evaluated earlier) stays quiet and the stall fires.
	for _, name := range []string{"get_page_info", "get_page_content", "find_element", "screenshot", "get_page_content"} {
		tr.Record(Record{Name: name, Success: true})
	}
	hint, ok := tr.DetectAny()
	if !ok || hint.Type != HintProgressStall {
		t.Fatalf("expected progress_stall, got %+v ok=%v", hint, ok)
	}
}

func TestNoDetectorFiresOnHealthyHistory(t *testing.T) {
	tr := New()
	tr.Record(Record{Name: "navigate", Success: true})
	tr.Record(Record{Name: "get_page_info", Success: true})
	tr.Record(Record{Name: "click", Success: true})
	if _, ok := tr.DetectAny(); ok {
		t.Fatalf("expected no detector to fire")
	}
}
