// Package budget implements the Content-Budget Formatter: per-tool
// character budgets that prefer the enriched ai-markdown/ai-summary
// fields over raw payload dumps.
package budget

// defaultBudgets are per-tool character caps. Tools not listed fall back
// to defaultBudget.
var defaultBudgets = map[string]int{
	"get_page_content": 6000,
	"get_page_info":    4000,
	"screenshot":       200, // screenshots are referenced by artifact id, not inlined
	"get_network_logs": 3000,
	"get_console_logs": 3000,
	"execute_javascript": 2000,
}

const defaultBudget = 1500

// Formatter truncates a tool result's text for inclusion in the
// conversation, preferring markdown/summary fields when present.
type Formatter struct {
	budgets map[string]int
}

// New builds a Formatter. Overrides replaces or extends the default
// per-tool budgets.
func New(overrides map[string]int) *Formatter {
	merged := make(map[string]int, len(defaultBudgets)+len(overrides))
	for k, v := range defaultBudgets {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return &Formatter{budgets: merged}
}

// BudgetFor returns the character budget for toolName.
func (f *Formatter) BudgetFor(toolName string) int {
	if b, ok := f.budgets[toolName]; ok {
		return b
	}
	return defaultBudget
}

// Format prefers markdown, then summary, then the raw fallback text,
// truncating to the tool's budget with a trailing marker when cut.
func (f *Formatter) Format(toolName, markdown, summary, fallback string) string {
	budget := f.BudgetFor(toolName)
	text := fallback
	if markdown != "" {
		text = markdown
	} else if summary != "" {
		text = summary
	}
	if len(text) <= budget {
		return text
	}
	if budget <= 3 {
		return text[:budget]
	}
	return text[:budget-3] + "..."
}
