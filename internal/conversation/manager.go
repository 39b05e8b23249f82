// Package conversation holds the bounded message history an agent loop
// drives an LLM with, and its compression policy.
package conversation

import (
	"fmt"
	"strings"
)

// Role is a conversation message's role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRef is the minimal shape of a tool call attached to an assistant
// message.
type ToolCallRef struct {
	ID   string
	Name string
	Args map[string]any
}

// Message is one append-only conversation entry.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCallRef
	ToolCallID string // set on tool-role messages, matches the originating call's ID
}

// Config bounds the manager.
type Config struct {
	MaxMessages       int
	CompressThreshold int
	KeepRecent        int
	CharsPerToken     int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{MaxMessages: 40, CompressThreshold: 30, KeepRecent: 20, CharsPerToken: 4}
}

// Manager holds an ordered message list; index 0 is always the system
// prompt.
type Manager struct {
	cfg      Config
	messages []Message
}

// New builds a Manager from an initial message list. Extra system-role
// messages beyond the first are merged into the primary system content; a
// trailing unmatched assistant-with-tool-calls (or orphan tool message) is
// stripped to keep the sequence well-formed.
func New(cfg Config, initial []Message) *Manager {
	m := &Manager{cfg: cfg, messages: normalizeInitial(initial)}
	return m
}

func normalizeInitial(initial []Message) []Message {
	if len(initial) == 0 {
		return []Message{{Role: RoleSystem, Content: ""}}
	}
	out := make([]Message, 0, len(initial))
	var systemParts []string
	firstSystemSeen := false
	for _, msg := range initial {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			firstSystemSeen = true
			continue
		}
		out = append(out, msg)
	}
	system := Message{Role: RoleSystem, Content: strings.Join(systemParts, "\n\n")}
	if !firstSystemSeen {
		system = Message{Role: RoleSystem}
	}
	merged := append([]Message{system}, out...)
	return stripTrailingOrphan(merged)
}

func stripTrailingOrphan(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	last := msgs[len(msgs)-1]
	if last.Role == RoleAssistant && len(last.ToolCalls) > 0 {
		return msgs[:len(msgs)-1]
	}
	if last.Role == RoleTool {
		return msgs[:len(msgs)-1]
	}
	return msgs
}

// Messages returns the current message list.
func (m *Manager) Messages() []Message {
	return append([]Message(nil), m.messages...)
}

// Push appends a message and compresses if the count now crosses
// CompressThreshold.
func (m *Manager) Push(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > m.cfg.CompressThreshold {
		m.compress()
	}
}

// EstimateTokens estimates the conversation's token count at
// charsPerToken chars/token.
func (m *Manager) EstimateTokens() int {
	total := 0
	for _, msg := range m.messages {
		total += len(msg.Content)
	}
	cpt := m.cfg.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	return total / cpt
}

// compress keeps message 0, keeps the last keepRecent messages, and
// collapses the middle into one user-role summary message. The split
// point is pulled backward so it never separates an assistant-with-
// tool-calls from its tool results.
func (m *Manager) compress() {
	keepRecent := m.cfg.KeepRecent
	if keepRecent <= 0 {
		keepRecent = 20
	}
	if len(m.messages) <= keepRecent+1 {
		return
	}

	splitIdx := len(m.messages) - keepRecent
	splitIdx = backAwayFromToolGroup(m.messages, splitIdx)
	if splitIdx <= 1 {
		return // nothing worth collapsing
	}

	middle := m.messages[1:splitIdx]
	summary := summarize(middle)

	out := make([]Message, 0, 2+len(m.messages)-splitIdx)
	out = append(out, m.messages[0])
	out = append(out, Message{Role: RoleUser, Content: summary})
	out = append(out, m.messages[splitIdx:]...)
	m.messages = out

	if m.cfg.MaxMessages > 0 && len(m.messages) > m.cfg.MaxMessages {
		m.messages = append([]Message{m.messages[0]}, m.messages[len(m.messages)-(m.cfg.MaxMessages-1):]...)
	}
}

// backAwayFromToolGroup moves idx backward until it does not land between
// an assistant message with tool calls and its matching tool results.
func backAwayFromToolGroup(msgs []Message, idx int) int {
	for idx > 1 && idx < len(msgs) {
		if msgs[idx].Role == RoleTool {
			idx--
			continue
		}
		if idx > 0 && msgs[idx-1].Role == RoleAssistant && len(msgs[idx-1].ToolCalls) > 0 {
			idx--
			continue
		}
		break
	}
	return idx
}

// summarize renders the collapsed range into the Chinese-tagged summary
// header the conversation manager has always used, followed by one line
// per tool-call group or free message.
func summarize(middle []Message) string {
	var b strings.Builder
	b.WriteString("[对话历史摘要]\n")

	i := 0
	for i < len(middle) {
		msg := middle[i]
		if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				names = append(names, tc.Name)
			}
			j := i + 1
			var snippet string
			for j < len(middle) && middle[j].Role == RoleTool {
				if snippet == "" {
					snippet = truncate(middle[j].Content, 80)
				}
				j++
			}
			thought := truncate(msg.Content, 80)
			fmt.Fprintf(&b, "- thought: %s called %s -> %s\n", thought, strings.Join(names, ","), snippet)
			i = j
			continue
		}
		b.WriteString("- " + string(msg.Role) + ": " + truncate(msg.Content, 120) + "\n")
		i++
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
