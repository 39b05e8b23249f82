package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/tools"
)

// BridgeTool adapts one MCP-advertised tool into the internal/tools.Tool
// interface, so a server's tools sit in the same catalog as native
// browser/task/composite tools.
type BridgeTool struct {
	server     string
	origName   string
	prefixed   string
	desc       string
	schema     map[string]any
	client     *mcpclient.Client
	timeoutSec int
	connected  *atomic.Bool
}

// NewBridgeTool wraps an MCP tool descriptor discovered from server.
func NewBridgeTool(server string, t mcpgo.Tool, client *mcpclient.Client, prefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	name := t.Name
	if prefix != "" {
		name = prefix + "_" + name
	}
	var schema map[string]any
	if b, err := t.InputSchema.MarshalJSON(); err == nil {
		var m map[string]any
		if json.Unmarshal(b, &m) == nil {
			schema = m
		}
	}
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &BridgeTool{
		server:     server,
		origName:   t.Name,
		prefixed:   name,
		desc:       t.Description,
		schema:     schema,
		client:     client,
		timeoutSec: timeoutSec,
		connected:  connected,
	}
}

// Name returns the (optionally prefixed) catalog name.
func (b *BridgeTool) Name() string { return b.prefixed }

// OriginalName returns the tool's name as advertised by the MCP server,
// before any configured prefix.
func (b *BridgeTool) OriginalName() string { return b.origName }

// Definition renders the MCP tool's JSON schema into the catalog shape.
func (b *BridgeTool) Definition() tools.Definition {
	return tools.Definition{Name: b.prefixed, Description: b.desc, Parameters: b.schema}
}

// Call forwards the invocation to the MCP server over its client.
func (b *BridgeTool) Call(ctx context.Context, args map[string]any) *tools.Result {
	if !b.connected.Load() {
		return tools.ErrorResultCode(errs.SessionNotFound, "mcp server "+b.server+" is not connected")
	}

	timeout := time.Duration(b.timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.origName
	req.Params.Arguments = args

	res, err := b.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResultCode(errs.ExecutionError, fmt.Sprintf("mcp call to %s failed: %v", b.origName, err))
	}
	if res.IsError {
		return tools.ErrorResultCode(errs.ExecutionError, contentText(res.Content))
	}
	return tools.NewResult(contentText(res.Content))
}

func contentText(content []mcpgo.Content) string {
	out := ""
	for _, c := range content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
