// Package tools holds the uniform catalog the Tool Surface registers
// into and the Agent Loop invokes against. Result is the
// unified return shape every tool produces; Registry is a concurrency-
// safe name -> Tool map with group membership for policy/debug listing.
package tools

import (
	"context"
	"sync"

	"github.com/browseragent/control-plane/internal/providers"
)

// Definition is the JSON-schema description of one tool, mirrored into
// providers.ToolDefinition when building an LLM request.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema object: {type, properties, required}
}

// Tool is one callable catalog entry.
type Tool interface {
	Name() string
	Definition() Definition
	Call(ctx context.Context, args map[string]any) *Result
}

// Registry is a concurrency-safe catalog of tools plus named groups
// (used for MCP-bridged tool sets and policy filtering).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	groups map[string][]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), groups: make(map[string][]string)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// ProviderDefs renders the full catalog as provider-facing tool
// definitions, in the shape the Agent Loop hands to the LLM each
// iteration.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		d := t.Definition()
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return defs
}

// Execute invokes a tool by name through the safety envelope: an unknown
// tool or a panicking handler always returns an error Result, never
// propagating to the caller.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res *Result) {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult("unknown tool: " + name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = ErrorResult("tool panicked")
		}
	}()
	return t.Call(ctx, args)
}

// RegisterToolGroup records a named set of tool names (e.g. "mcp:server")
// for debug listing; it does not affect Execute/Get.
func (r *Registry) RegisterToolGroup(name string, toolNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = append([]string(nil), toolNames...)
}

// UnregisterToolGroup removes a named group.
func (r *Registry) UnregisterToolGroup(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, name)
}

// Groups returns the current group -> tool-names membership.
func (r *Registry) Groups() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.groups))
	for k, v := range r.groups {
		out[k] = append([]string(nil), v...)
	}
	return out
}
