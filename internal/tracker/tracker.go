// Package tracker records tool calls and detects futile-retry,
// exact-repeat, oscillation, and progress-stall patterns.
package tracker

import (
	"reflect"
	"time"
)

// Record is one tool-call observation, append-only per agent session.
type Record struct {
	Name      string
	Args      map[string]any
	Success   bool
	ErrorCode string
	Timestamp time.Time
}

// HintType names which detector fired.
type HintType string

const (
	HintFutileRetry    HintType = "futile_retry"
	HintExactRepeat    HintType = "exact_repeat"
	HintOscillation    HintType = "oscillation"
	HintProgressStall  HintType = "progress_stall"
)

// Hint is the message the Agent Loop injects verbatim at the user role
// when a detector fires.
type Hint struct {
	Type    HintType
	Message string
}

var hintTemplates = map[HintType]string{
	HintFutileRetry:   "The last two calls to the same tool with the same arguments both failed. Stop repeating this call; change the selector, arguments, or approach before retrying.",
	HintExactRepeat:   "The last three tool calls were identical. Re-running the same call will not produce a different result; try a different tool or arguments.",
	HintOscillation:   "You are alternating between two tool calls without making progress. Break the cycle: try a different strategy or escalate with a page snapshot.",
	HintProgressStall: "The last several calls were all read-only observations with no navigation or action. Take a concrete action (navigate, click, go back) to move the task forward.",
}

var observationTools = map[string]bool{
	"get_page_info":    true,
	"get_page_content": true,
	"find_element":     true,
	"screenshot":       true,
}

var navigationActionTools = map[string]bool{
	"navigate": true,
	"click":    true,
	"go_back":  true,
}

// Tracker holds the append-only per-session tool-call history.
type Tracker struct {
	records []Record
}

// New returns an empty Tracker.
func New() *Tracker { return &Tracker{} }

// Record appends a tool-call observation.
func (t *Tracker) Record(r Record) {
	t.records = append(t.records, r)
}

// DetectAny evaluates all detectors in spec order and returns the first
// hit.
func (t *Tracker) DetectAny() (Hint, bool) {
	if h, ok := t.detectFutileRetry(); ok {
		return h, true
	}
	if h, ok := t.detectExactRepeat(); ok {
		return h, true
	}
	if h, ok := t.detectOscillation(); ok {
		return h, true
	}
	if h, ok := t.detectProgressStall(); ok {
		return h, true
	}
	return Hint{}, false
}

func sameCall(a, b Record) bool {
	return a.Name == b.Name && reflect.DeepEqual(a.Args, b.Args)
}

func (t *Tracker) last(n int) []Record {
	if len(t.records) < n {
		return nil
	}
	return t.records[len(t.records)-n:]
}

func (t *Tracker) detectFutileRetry() (Hint, bool) {
	last := t.last(2)
	if last == nil {
		return Hint{}, false
	}
	if sameCall(last[0], last[1]) && !last[0].Success && !last[1].Success {
		return Hint{Type: HintFutileRetry, Message: hintTemplates[HintFutileRetry]}, true
	}
	return Hint{}, false
}

func (t *Tracker) detectExactRepeat() (Hint, bool) {
	last := t.last(3)
	if last == nil {
		return Hint{}, false
	}
	if sameCall(last[0], last[1]) && sameCall(last[1], last[2]) {
		return Hint{Type: HintExactRepeat, Message: hintTemplates[HintExactRepeat]}, true
	}
	return Hint{}, false
}

func (t *Tracker) detectOscillation() (Hint, bool) {
	last := t.last(6)
	if last == nil {
		return Hint{}, false
	}
	if sameCall(last[0], last[2]) && sameCall(last[2], last[4]) &&
		sameCall(last[1], last[3]) && sameCall(last[3], last[5]) &&
		!sameCall(last[0], last[1]) {
		return Hint{Type: HintOscillation, Message: hintTemplates[HintOscillation]}, true
	}
	return Hint{}, false
}

func (t *Tracker) detectProgressStall() (Hint, bool) {
	last := t.last(5)
	if last == nil {
		return Hint{}, false
	}
	for _, r := range last {
		if !observationTools[r.Name] {
			return Hint{}, false
		}
	}
	for _, r := range last {
		if navigationActionTools[r.Name] {
			return Hint{}, false
		}
	}
	return Hint{Type: HintProgressStall, Message: hintTemplates[HintProgressStall]}, true
}
