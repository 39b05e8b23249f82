package toolsurface

import (
	"context"

	"github.com/browseragent/control-plane/internal/tools"
)

// handlerFunc is a tool's business logic, returning a JSON-able payload or
// one of the fixed errs.Code errors.
type handlerFunc func(ctx context.Context, args map[string]any) (any, error)

// funcTool adapts a handlerFunc into tools.Tool. The safety envelope (no
// panics/errors ever reach the caller raw) is enforced one layer up by
// tools.Registry.Execute; funcTool itself only needs to translate a Go
// error into the Result shape.
type funcTool struct {
	name string
	def  tools.Definition
	fn   handlerFunc
}

func (f *funcTool) Name() string              { return f.name }
func (f *funcTool) Definition() tools.Definition { return f.def }

func (f *funcTool) Call(ctx context.Context, args map[string]any) *tools.Result {
	data, err := f.fn(ctx, args)
	if err != nil {
		return tools.FromErr(err)
	}
	return tools.NewResult(data)
}

func newTool(name, description string, params map[string]any, fn handlerFunc) *funcTool {
	return &funcTool{name: name, def: tools.Definition{Name: name, Description: description, Parameters: params}, fn: fn}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
