// Package mcp exposes the recipe tools to MCP clients. Tools live in a
// Registry that can be called in-process or served over an MCP transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolSpec documents a tool's contract.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Tool is one registered tool. Call takes and returns JSON; install adds the
// tool to an MCP server with a schema inferred from its input type.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
	install(srv *sdkmcp.Server)
}

// Registry holds tool registrations and dispatches calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	if r == nil || t == nil {
		return
	}
	spec := t.Spec()
	if spec.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]Tool{}
	}
	r.tools[spec.Name] = t
}

func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	if r == nil {
		return nil, fmt.Errorf("mcp: registry is nil")
	}
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp: unknown tool %q", name)
	}
	return t.Call(ctx, input)
}

// Specs returns the tool specs sorted by name.
func (r *Registry) Specs() []ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Spec())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// typedTool adapts a function with JSON-typed input and output to Tool.
type typedTool[In, Out any] struct {
	spec ToolSpec
	fn   func(ctx context.Context, in In) (Out, error)
}

func newTool[In, Out any](name, description string, fn func(context.Context, In) (Out, error)) *typedTool[In, Out] {
	return &typedTool[In, Out]{spec: ToolSpec{Name: name, Description: description}, fn: fn}
}

func (t *typedTool[In, Out]) Spec() ToolSpec { return t.spec }

func (t *typedTool[In, Out]) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in In
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%s: decode input: %w", t.spec.Name, err)
		}
	}
	out, err := t.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (t *typedTool[In, Out]) install(srv *sdkmcp.Server) {
	sdkmcp.AddTool(srv, &sdkmcp.Tool{
		Name:        t.spec.Name,
		Description: t.spec.Description,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, Out, error) {
		out, err := t.fn(ctx, in)
		return nil, out, err
	})
}
