package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ComposeInjection builds the compact prompt fragment injected before an
// agent run begins. Global-kind patterns always appear;
// task-intent patterns are ranked by substring relevance to goal first,
// then everything else by effective confidence. The fragment is
// truncated to charBudget with a trailing caution line.
func ComposeInjection(card *Card, goal string, charBudget int, now time.Time) string {
	if card == nil || len(card.Patterns) == 0 {
		return ""
	}

	var global, intent, other []Pattern
	for _, p := range card.Patterns {
		switch {
		case globalKinds[p.Kind]:
			global = append(global, p)
		case p.Kind == KindTaskIntent:
			intent = append(intent, p)
		default:
			other = append(other, p)
		}
	}

	sort.SliceStable(intent, func(i, j int) bool {
		ri := relevance(intent[i].Description, goal)
		rj := relevance(intent[j].Description, goal)
		if ri != rj {
			return ri > rj
		}
		return intent[i].EffectiveConfidence(now) > intent[j].EffectiveConfidence(now)
	})
	if len(intent) > 3 {
		intent = intent[:3]
	}
	sort.SliceStable(other, func(i, j int) bool {
		return other[i].EffectiveConfidence(now) > other[j].EffectiveConfidence(now)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Known patterns for %s:\n", card.Domain)
	for _, p := range global {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", p.Kind, p.Description, p.Value)
	}
	for _, p := range intent {
		fmt.Fprintf(&b, "- [task_intent] %s: %s\n", p.Description, p.Value)
	}
	for _, p := range other {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", p.Kind, p.Description, p.Value)
	}

	fragment := b.String()
	caution := "\n(patterns are hints, not guarantees; verify before relying on them)"
	if len(fragment)+len(caution) <= charBudget {
		return fragment + caution
	}
	cut := charBudget - len(caution)
	if cut < 0 {
		cut = 0
	}
	return truncateRunes(fragment, cut) + caution
}

// relevance is a CJK-compatible match score: the count of non-space runes
// of goal that also appear somewhere in description. Contiguous shared
// runs earn no extra weight.
func relevance(description, goal string) int {
	if description == "" || goal == "" {
		return 0
	}
	descRunes := []rune(strings.ToLower(description))
	goalRunes := []rune(strings.ToLower(goal))
	score := 0
	for _, r := range goalRunes {
		if unicode.IsSpace(r) {
			continue
		}
		for _, d := range descRunes {
			if d == r {
				score++
				break
			}
		}
	}
	return score
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n < 0 {
		n = 0
	}
	return string(r[:n])
}
