package conversation

import (
	"strings"
	"testing"
)

// Init with system "S" and 12 pushed
// assistant messages at compressThreshold=10, keepRecent=5 => result has
// <=10 messages, message[0].content=="S", message[1].role=="user" and
// content starts with "[对话历史摘要]".
func TestCompressionBoundaryScenario(t *testing.T) {
	cfg := Config{MaxMessages: 40, CompressThreshold: 10, KeepRecent: 5, CharsPerToken: 4}
	m := New(cfg, []Message{{Role: RoleSystem, Content: "S"}})
	for i := 0; i < 12; i++ {
		m.Push(Message{Role: RoleAssistant, Content: "turn"})
	}
	msgs := m.Messages()
	if len(msgs) > 10 {
		t.Fatalf("len(msgs) = %d, want <= 10", len(msgs))
	}
	if msgs[0].Content != "S" {
		t.Fatalf("msgs[0].Content = %q, want S", msgs[0].Content)
	}
	if msgs[1].Role != RoleUser {
		t.Fatalf("msgs[1].Role = %s, want user", msgs[1].Role)
	}
	if !strings.HasPrefix(msgs[1].Content, "[对话历史摘要]") {
		t.Fatalf("msgs[1].Content = %q, want prefix [对话历史摘要]", msgs[1].Content)
	}
}

func TestNormalizeInitialMergesSystemAndStripsOrphan(t *testing.T) {
	m := New(DefaultConfig(), []Message{
		{Role: RoleSystem, Content: "base"},
		{Role: RoleSystem, Content: "extra"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "calling", ToolCalls: []ToolCallRef{{ID: "1", Name: "navigate"}}},
	})
	msgs := m.Messages()
	if msgs[0].Role != RoleSystem || !strings.Contains(msgs[0].Content, "base") || !strings.Contains(msgs[0].Content, "extra") {
		t.Fatalf("system merge failed: %+v", msgs[0])
	}
	last := msgs[len(msgs)-1]
	if last.Role == RoleAssistant && len(last.ToolCalls) > 0 {
		t.Fatalf("trailing orphan tool-call message should have been stripped")
	}
}

func TestCompressionNeverSplitsToolCallGroup(t *testing.T) {
	cfg := Config{MaxMessages: 40, CompressThreshold: 5, KeepRecent: 3, CharsPerToken: 4}
	m := New(cfg, []Message{{Role: RoleSystem, Content: "S"}})
	m.Push(Message{Role: RoleUser, Content: "go"})
	m.Push(Message{Role: RoleAssistant, Content: "let me check", ToolCalls: []ToolCallRef{{ID: "1", Name: "navigate"}}})
	m.Push(Message{Role: RoleTool, Content: "result", ToolCallID: "1"})
	m.Push(Message{Role: RoleUser, Content: "continue"})
	m.Push(Message{Role: RoleAssistant, Content: "done"})
	msgs := m.Messages()
	if len(msgs) < 2 || !strings.HasPrefix(msgs[1].Content, "[对话历史摘要]") {
		t.Fatalf("expected compression to have run, got %+v", msgs)
	}
	for i, msg := range msgs {
		if msg.Role == RoleTool {
			if i == 0 || msgs[i-1].Role != RoleAssistant {
				t.Fatalf("tool message at %d has no preceding assistant message", i)
			}
		}
	}
}
