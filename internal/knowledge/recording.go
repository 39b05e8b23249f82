package knowledge

import (
	"fmt"
	"time"
)

// RecordedEventType enumerates the human-recording event kinds.
type RecordedEventType string

const (
	EventNavigate  RecordedEventType = "navigate"
	EventClick     RecordedEventType = "click"
	EventType      RecordedEventType = "type"
	EventSelect    RecordedEventType = "select"
	EventScroll    RecordedEventType = "scroll"
)

// RecordedEvent is one step of a human-recorded browsing session.
// Password field values are elided by the recorder before reaching this
// package; IsSensitive marks fields that must never be persisted.
type RecordedEvent struct {
	Type      RecordedEventType
	URL       string
	CSSPath   string
	AriaLabel string
	Text      string
	IsSensitive bool
}

// ConvertSession turns a recorded session into patterns: navigation
// paths (when at least two distinct URLs are visited), click targets,
// and non-sensitive form fields. All produced patterns carry confidence
// 0.8 and source human_recording.
func ConvertSession(events []RecordedEvent, now time.Time) []Pattern {
	var patterns []Pattern

	seenURLs := map[string]bool{}
	var navPath []string
	for _, e := range events {
		if e.Type == EventNavigate && e.URL != "" {
			if !seenURLs[e.URL] {
				seenURLs[e.URL] = true
				navPath = append(navPath, e.URL)
			}
		}
	}
	if len(navPath) >= 2 {
		patterns = append(patterns, newPattern(KindNavigationPath, "recorded navigation path", joinPath(navPath), now))
	}

	for _, e := range events {
		switch e.Type {
		case EventClick:
			if target := elementTarget(e); target != "" {
				patterns = append(patterns, newPattern(KindSelector, "recorded click target", target, now))
			}
		case EventType, EventSelect:
			if e.IsSensitive {
				continue
			}
			if target := elementTarget(e); target != "" {
				patterns = append(patterns, newPattern(KindSelector, "recorded form field", target, now))
			}
		}
	}
	return patterns
}

func elementTarget(e RecordedEvent) string {
	switch {
	case e.CSSPath != "":
		return e.CSSPath
	case e.AriaLabel != "":
		return fmt.Sprintf("[aria-label=%q]", e.AriaLabel)
	case e.Text != "":
		return fmt.Sprintf("text=%q", e.Text)
	default:
		return ""
	}
}

func joinPath(urls []string) string {
	out := urls[0]
	for _, u := range urls[1:] {
		out += " -> " + u
	}
	return out
}

func newPattern(kind PatternKind, description, value string, now time.Time) Pattern {
	return Pattern{
		Kind:        kind,
		Description: description,
		Value:       value,
		Confidence:  0.8,
		UseCount:    0,
		LastUsedAt:  now,
		CreatedAt:   now,
		Source:      SourceHumanRecording,
	}
}
