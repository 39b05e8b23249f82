// Package enrich transforms raw tool output into the standard envelope the
// Agent Loop and REST surface both consume.
package enrich

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/browseragent/control-plane/pkg/protocol"
)

// DetailLevel controls how much of the envelope is retained.
type DetailLevel string

const (
	DetailBrief  DetailLevel = "brief"
	DetailNormal DetailLevel = "normal"
	DetailFull   DetailLevel = "full"
)

// NextAction is a normalized follow-up suggestion.
type NextAction struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Priority string         `json:"priority"` // high|medium|low
	Reason   string         `json:"reason"`
}

// DeltaSummary reports what changed since the last envelope keyed to the
// same tool+distinguishing-arg.
type DeltaSummary struct {
	Key     string   `json:"key"`
	Changes []string `json:"changes"`
}

// DetailPolicy records why a detail level was chosen.
type DetailPolicy struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// RepairGuidance recommends follow-ups when output verification failed.
type RepairGuidance struct {
	Missing           []string `json:"missing,omitempty"`
	TypeMismatches    []string `json:"typeMismatches,omitempty"`
	RecommendedChecks []string `json:"recommendedChecks,omitempty"`
}

// Envelope is the standard enrichment shape.
type Envelope struct {
	AiSchemaVersion      int             `json:"aiSchemaVersion"`
	AiDetailLevel        DetailLevel     `json:"aiDetailLevel"`
	AiSummary            string          `json:"aiSummary"`
	AiMarkdown           string          `json:"aiMarkdown"`
	AiHints              []string        `json:"aiHints,omitempty"`
	NextActions          []NextAction    `json:"nextActions,omitempty"`
	DeltaSummary         *DeltaSummary   `json:"deltaSummary,omitempty"`
	AiDetailPolicy       *DetailPolicy   `json:"aiDetailPolicy,omitempty"`
	SchemaRepairGuidance *RepairGuidance `json:"schemaRepairGuidance,omitempty"`
}

// RawPayload is the shape a tool handler hands to the enricher before
// transformation.
type RawPayload struct {
	Summary        string
	Markdown       string
	Data           any // raw tool payload, inspected for continuation cursors
	Hints          []string
	NextActions    []NextAction
	ExplicitDetail DetailLevel // wins over adaptive policy when set
	IsPolling      bool        // a polling tool (get_task_run); run state is carried by IsTerminal
	IsTerminal     bool
	Failed         bool
	Verification   *Verification
	// Envelope is set when the raw payload already carries a well-formed
	// envelope; enriching it again must leave those fields stable.
	Envelope *Envelope
}

// Verification is the structural check result the Planner/Verifier
// attaches to a failing run.
type Verification struct {
	Pass           bool
	MissingFields  []string
	TypeMismatches []string
}

// Options configures one Enrich call.
type Options struct {
	Key            string // tool name + distinguishing arg, e.g. "get_task_run:runId"
	DetailLevel    DetailLevel
	AdaptivePolicy bool
}

// Enricher holds the small keyed memory of last-emitted envelopes needed
// for DeltaSummary.
type Enricher struct {
	mu   sync.Mutex
	last map[string]Envelope
}

// New builds an Enricher.
func New() *Enricher {
	return &Enricher{last: make(map[string]Envelope)}
}

// Enrich builds (or idempotently refreshes) the envelope for one raw tool
// result.
func (e *Enricher) Enrich(raw RawPayload, opts Options) Envelope {
	if raw.Envelope != nil {
		// Idempotence law: leave fields stable, only refresh deltaSummary.
		env := *raw.Envelope
		env.DeltaSummary = e.delta(opts.Key, env)
		return env
	}

	detail := e.resolveDetail(raw, opts)

	actions := raw.NextActions
	if cont, ok := continuationAction(opts.Key, raw.Data); ok {
		actions = append(actions, cont)
	}

	env := Envelope{
		AiSchemaVersion: protocol.ProtocolVersion,
		AiDetailLevel:   detail,
		AiSummary:       truncate(raw.Summary, 200),
		AiMarkdown:      applyDetail(raw.Markdown, detail),
		AiHints:         raw.Hints,
		NextActions:     normalizeActions(actions),
	}
	if opts.AdaptivePolicy {
		env.AiDetailPolicy = &DetailPolicy{Mode: string(detail), Reason: detailReason(raw), Source: detailSource(raw, opts)}
	}
	if raw.Verification != nil && !raw.Verification.Pass {
		env.SchemaRepairGuidance = repairGuidance(*raw.Verification)
	}

	env.DeltaSummary = e.delta(opts.Key, env)
	return env
}

func (e *Enricher) resolveDetail(raw RawPayload, opts Options) DetailLevel {
	if raw.ExplicitDetail != "" {
		return raw.ExplicitDetail
	}
	detail := opts.DetailLevel
	if detail == "" {
		detail = DetailNormal
	}
	if !opts.AdaptivePolicy {
		return detail
	}
	if raw.IsPolling && !raw.IsTerminal {
		return DetailBrief
	}
	if raw.IsTerminal && raw.Failed {
		return DetailFull
	}
	return detail
}

func detailReason(raw RawPayload) string {
	switch {
	case raw.ExplicitDetail != "":
		return "explicit"
	case raw.IsPolling && !raw.IsTerminal:
		return "polling a non-terminal run"
	case raw.IsTerminal && raw.Failed:
		return "terminal failure"
	default:
		return "default"
	}
}

func detailSource(raw RawPayload, opts Options) string {
	if raw.ExplicitDetail != "" {
		return "payload"
	}
	if opts.AdaptivePolicy {
		return "adaptive"
	}
	return "config"
}

// applyDetail strips tables and element lists for brief detail; full and
// normal pass markdown through unchanged (the enrichment "markdown" is a
// convention, not a literal format — tests check headings/row-tables/
// bounded length, not line-for-line equivalence).
func applyDetail(markdown string, detail DetailLevel) string {
	if detail != DetailBrief {
		return markdown
	}
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, "-") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// normalizeActions ensures every action has a terminated reason and a
// valid priority, and removes duplicates by (tool, args).
func normalizeActions(actions []NextAction) []NextAction {
	seen := make(map[string]bool)
	out := make([]NextAction, 0, len(actions))
	for _, a := range actions {
		key := a.Tool + fmt.Sprint(a.Args)
		if seen[key] {
			continue
		}
		seen[key] = true
		if a.Priority != "high" && a.Priority != "medium" && a.Priority != "low" {
			a.Priority = "medium"
		}
		if r := strings.TrimSpace(a.Reason); r == "" {
			a.Reason = "Follow up on this result."
		} else if !strings.HasSuffix(r, ".") && !strings.HasSuffix(r, "!") && !strings.HasSuffix(r, "?") {
			a.Reason = r + "."
		}
		out = append(out, a)
	}
	return out
}

func repairGuidance(v Verification) *RepairGuidance {
	g := &RepairGuidance{Missing: v.MissingFields, TypeMismatches: v.TypeMismatches}
	checks := make([]string, 0, len(v.MissingFields))
	for _, f := range v.MissingFields {
		if looksTextual(f) {
			checks = append(checks, "call get_page_content to recover "+f)
		} else {
			checks = append(checks, "call get_page_info to recover "+f)
		}
	}
	g.RecommendedChecks = checks
	return g
}

func looksTextual(field string) bool {
	lower := strings.ToLower(field)
	for _, hint := range []string{"content", "text", "body", "summary", "title"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// continuationAction emits a follow-up call carrying the returned cursor
// when a list/logs payload reports hasMore=true.
func continuationAction(key string, data any) (NextAction, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return NextAction{}, false
	}
	hasMore, _ := m["hasMore"].(bool)
	if !hasMore {
		return NextAction{}, false
	}
	tool := key
	if i := strings.Index(tool, ":"); i >= 0 {
		tool = tool[:i]
	}
	args := map[string]any{}
	if cursor, ok := m["cursor"]; ok {
		args["cursor"] = cursor
	}
	return NextAction{
		Tool:     tool,
		Args:     args,
		Priority: "medium",
		Reason:   "More results are available; continue from the returned cursor.",
	}, true
}

// delta diffs env against the last envelope recorded under key and stores
// env as the new snapshot.
func (e *Enricher) delta(key string, env Envelope) *DeltaSummary {
	if key == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.last[key]
	e.last[key] = env
	if !ok {
		return &DeltaSummary{Key: key, Changes: []string{"initial snapshot"}}
	}

	var changes []string
	if prev.AiSummary != env.AiSummary {
		changes = append(changes, "summary changed")
	}
	if len(env.NextActions) > len(prev.NextActions) {
		changes = append(changes, "new next actions")
	}
	if env.SchemaRepairGuidance != nil && prev.SchemaRepairGuidance == nil {
		changes = append(changes, "new error class")
	}
	if len(changes) == 0 {
		changes = []string{"no change"}
	}
	sort.Strings(changes)
	return &DeltaSummary{Key: key, Changes: changes}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
