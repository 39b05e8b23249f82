package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/browseragent/control-plane/internal/errs"
)

type scriptedTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) *Result
}

func (t *scriptedTool) Name() string { return t.name }
func (t *scriptedTool) Definition() Definition {
	return Definition{Name: t.name, Parameters: map[string]any{"type": "object"}}
}
func (t *scriptedTool) Call(ctx context.Context, args map[string]any) *Result {
	return t.fn(ctx, args)
}

func TestExecuteUnknownToolReturnsErrorResult(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil)
	if !res.IsError {
		t.Fatalf("expected error result for unknown tool")
	}
}

func TestExecuteConvertsPanicToErrorResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&scriptedTool{name: "boom", fn: func(ctx context.Context, args map[string]any) *Result {
		panic("handler exploded")
	}})
	res := r.Execute(context.Background(), "boom", nil)
	if !res.IsError {
		t.Fatalf("panic should surface as an error result, not propagate")
	}
}

func TestToEnvelopeErrorCarriesCodeInJSONText(t *testing.T) {
	env := ToEnvelope(ErrorResultCode(errs.ElementNotFound, "no such node"))
	if !env.IsError || len(env.Content) != 1 || env.Content[0].Type != "text" {
		t.Fatalf("envelope shape wrong: %+v", env)
	}
	var payload struct {
		Error     string `json:"error"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal([]byte(env.Content[0].Text), &payload); err != nil {
		t.Fatalf("content text is not JSON: %v", err)
	}
	if payload.ErrorCode != "ELEMENT_NOT_FOUND" {
		t.Fatalf("errorCode = %q, want ELEMENT_NOT_FOUND", payload.ErrorCode)
	}
}

func TestToEnvelopeSuccessSerializesData(t *testing.T) {
	env := ToEnvelope(NewResult(map[string]any{"clicked": true}))
	if env.IsError {
		t.Fatalf("unexpected error envelope")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(env.Content[0].Text), &data); err != nil {
		t.Fatalf("content text is not JSON: %v", err)
	}
	if data["clicked"] != true {
		t.Fatalf("payload lost: %+v", data)
	}
}
