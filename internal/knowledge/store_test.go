package knowledge

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxDomains:             200,
		MaxPatternsPerDomain:   30,
		MaxArchivesPerDomain:   5,
		CardCache:              10,
		FlushDelayMs:           5,
		ArchiveChangeThreshold: 0.5,
		ConfidenceDecayBase:    0.95,
		MinConfidence:          0.1,
		InjectionCharBudget:    2000,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(testConfig(), t.TempDir(), nil)
	return s
}

func patternsWithValues(values ...string) []Pattern {
	out := make([]Pattern, len(values))
	for i, v := range values {
		out[i] = Pattern{Kind: KindSelector, Description: "d" + v, Value: v, Confidence: 0.9, Source: SourceAgentAuto}
	}
	return out
}

func TestSaveCard_EnforcesPatternCap(t *testing.T) {
	s := newTestStore(t)
	values := make([]string, 40)
	for i := range values {
		values[i] = string(rune('a' + (i % 26)))
	}
	// Give each pattern a distinct effective confidence so the cap keeps a
	// stable top-30, not an arbitrary tie-broken slice.
	patterns := patternsWithValues(values...)
	for i := range patterns {
		patterns[i].Confidence = 0.5 + float64(i)*0.001
		patterns[i].Value = values[i] + string(rune('0'+i%10))
	}
	if err := s.SaveCard("example.com", Card{Patterns: patterns}); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}
	card, ok, err := s.GetCard("example.com")
	if err != nil || !ok {
		t.Fatalf("GetCard: ok=%v err=%v", ok, err)
	}
	if len(card.Patterns) != 30 {
		t.Fatalf("len(patterns) = %d, want 30", len(card.Patterns))
	}
}

func TestSaveCard_ArchivesOnDivergence(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCard("example.com", Card{Patterns: patternsWithValues("a", "b", "c")}); err != nil {
		t.Fatalf("initial SaveCard: %v", err)
	}
	// Replace all three values -> 6/3 = 2.0 symmetric diff, over the 0.5 threshold.
	if err := s.SaveCard("example.com", Card{Patterns: patternsWithValues("x", "y", "z")}); err != nil {
		t.Fatalf("divergent SaveCard: %v", err)
	}
	card, _, err := s.GetCard("example.com")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if card.Version != 2 {
		t.Fatalf("version = %d, want 2 after an archived divergence", card.Version)
	}
}

func TestSaveCard_NoArchiveOnSmallDivergence(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCard("example.com", Card{Patterns: patternsWithValues("a", "b", "c", "d")}); err != nil {
		t.Fatalf("initial SaveCard: %v", err)
	}
	// Replace just one of four values -> 2/4 = 0.5, not strictly over threshold.
	if err := s.SaveCard("example.com", Card{Patterns: patternsWithValues("a", "b", "c", "z")}); err != nil {
		t.Fatalf("second SaveCard: %v", err)
	}
	card, _, err := s.GetCard("example.com")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if card.Version != 1 {
		t.Fatalf("version = %d, want 1 (no archive at exactly the threshold)", card.Version)
	}
}

func TestGetCard_UnknownDomain(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetCard("neverseen.example.com")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if ok {
		t.Fatalf("expected unknown domain to report ok=false")
	}
}

func TestValidateDomain_RejectsTraversal(t *testing.T) {
	cases := []string{"", "../etc/passwd", "a/b.com", "EXAMPLE.com", "-leading.com", "trailing-"}
	for _, d := range cases {
		if err := ValidateDomain(d); err == nil {
			t.Errorf("ValidateDomain(%q) = nil, want error", d)
		}
	}
	if err := ValidateDomain("shop.example.com"); err != nil {
		t.Errorf("ValidateDomain(shop.example.com) = %v, want nil", err)
	}
}

func TestRecordUsage_BoostsConfidenceAndCapsAtOne(t *testing.T) {
	s := newTestStore(t)
	p := Pattern{Kind: KindSelector, Description: "d", Value: "#submit", Confidence: 0.98, Source: SourceAgentAuto}
	if err := s.SaveCard("example.com", Card{Patterns: []Pattern{p}}); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}
	if err := s.RecordUsage("example.com", "#submit"); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	card, _, err := s.GetCard("example.com")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if card.Patterns[0].Confidence != 1.0 {
		t.Fatalf("confidence = %v, want capped at 1.0", card.Patterns[0].Confidence)
	}
	if card.Patterns[0].UseCount != 1 {
		t.Fatalf("useCount = %d, want 1", card.Patterns[0].UseCount)
	}
}

func TestMaintain_PurgesDecayedPatterns(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	fixedNow := now
	s.now = func() time.Time { return fixedNow }

	stale := Pattern{Kind: KindSelector, Description: "stale", Value: "old", Confidence: 0.11, LastUsedAt: now.Add(-400 * 24 * time.Hour), Source: SourceAgentAuto}
	fresh := Pattern{Kind: KindSelector, Description: "fresh", Value: "new", Confidence: 0.9, LastUsedAt: now, Source: SourceAgentAuto}
	if err := s.SaveCard("example.com", Card{Patterns: []Pattern{stale, fresh}}); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}
	if err := s.Maintain(); err != nil {
		t.Fatalf("Maintain: %v", err)
	}
	card, _, err := s.GetCard("example.com")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if len(card.Patterns) != 1 || card.Patterns[0].Value != "new" {
		t.Fatalf("patterns after maintain = %+v, want only the fresh pattern", card.Patterns)
	}
}

func TestEffectiveConfidence_DecaysWithAge(t *testing.T) {
	now := time.Now()
	p := Pattern{Confidence: 1.0, LastUsedAt: now.Add(-24 * time.Hour)}
	got := p.EffectiveConfidence(now)
	want := 0.95
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("effective confidence after 1 day = %v, want %v", got, want)
	}
}
