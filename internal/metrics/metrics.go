// Package metrics exposes Prometheus counters and gauges for the run
// manager, tool surface, and knowledge store.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge this service publishes. It
// implements runmanager.Gauges directly so the Run Manager can report
// into it without an adapter.
type Metrics struct {
	ActiveRuns  prometheus.Gauge
	QueuedRuns  prometheus.Gauge
	RunsTotal   *prometheus.CounterVec // label: status
	ToolCalls   *prometheus.CounterVec // label: tool, outcome
	LLMCalls    *prometheus.CounterVec // label: provider, outcome
	KnowledgeHits   prometheus.Counter
	KnowledgeMisses prometheus.Counter
}

// New registers and returns a Metrics bundle against reg. Pass
// prometheus.DefaultRegisterer for the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "browseragent",
			Name:      "active_runs",
			Help:      "Number of runs currently executing.",
		}),
		QueuedRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "browseragent",
			Name:      "queued_runs",
			Help:      "Number of runs waiting for a concurrency slot.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browseragent",
			Name:      "runs_total",
			Help:      "Total runs by terminal status.",
		}, []string{"status"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browseragent",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browseragent",
			Name:      "llm_calls_total",
			Help:      "Total LLM calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		KnowledgeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browseragent",
			Name:      "knowledge_card_hits_total",
			Help:      "Knowledge card cache hits.",
		}),
		KnowledgeMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browseragent",
			Name:      "knowledge_card_misses_total",
			Help:      "Knowledge card cache misses.",
		}),
	}
	reg.MustRegister(m.ActiveRuns, m.QueuedRuns, m.RunsTotal, m.ToolCalls, m.LLMCalls, m.KnowledgeHits, m.KnowledgeMisses)
	return m
}

// SetActiveRuns implements runmanager.Gauges.
func (m *Metrics) SetActiveRuns(n int) { m.ActiveRuns.Set(float64(n)) }

// SetQueuedRuns implements runmanager.Gauges.
func (m *Metrics) SetQueuedRuns(n int) { m.QueuedRuns.Set(float64(n)) }

// RecordRunTerminal increments the runs_total counter for a terminal status.
func (m *Metrics) RecordRunTerminal(status string) { m.RunsTotal.WithLabelValues(status).Inc() }

// RecordToolCall increments the tool_calls_total counter.
func (m *Metrics) RecordToolCall(tool string, isError bool) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordLLMCall increments the llm_calls_total counter.
func (m *Metrics) RecordLLMCall(provider string, isError bool) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.LLMCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordKnowledgeLookup increments the hit or miss counter.
func (m *Metrics) RecordKnowledgeLookup(hit bool) {
	if hit {
		m.KnowledgeHits.Inc()
	} else {
		m.KnowledgeMisses.Inc()
	}
}
