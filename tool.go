package axon

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool defines an agent capability with one or more tool functions.
// Remote tool servers are exposed by implementing this interface in an
// adapter; the dispatcher does not distinguish local from remote tools.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds all registered tools and dispatches execution by
// name. Registration is add-only: a tool, once added, lives as long as
// the owning driver. Safe for concurrent reads after setup.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools []Tool
	index map[string]Tool

	// compiled argument schemas, built lazily on first validation
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		index:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Add registers a tool. Later registrations win on name collision.
func (r *ToolRegistry) Add(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		r.index[d.Name] = t
		delete(r.schemas, d.Name)
	}
}

// Get returns the tool registered under name, if any.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.index[name]
	return t, ok
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Definitions returns the definitions visible under the given
// allow-list. An empty allow-list means all registered tools.
func (r *ToolRegistry) Definitions(allowed []string) []ToolDefinition {
	defs := r.AllDefinitions()
	if len(allowed) == 0 {
		return defs
	}
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	var out []ToolDefinition
	for _, d := range defs {
		if allow[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// Execute validates args against the tool's declared schema, then
// dispatches the call. Unknown tools and schema violations are reported
// as ErrTool so the driver can feed them back to the model.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return ToolResult{}, &ErrTool{Tool: name, Kind: ToolErrInternal, Message: "unknown tool"}
	}
	if err := r.validateArgs(name, args); err != nil {
		return ToolResult{}, &ErrTool{Tool: name, Kind: ToolErrInvalidArguments, Message: err.Error()}
	}
	return t.Execute(ctx, name, args)
}

// validateArgs checks args against the declared parameter schema.
// Tools without a schema accept anything.
func (r *ToolRegistry) validateArgs(name string, args json.RawMessage) error {
	schema, err := r.compiledSchema(name)
	if err != nil || schema == nil {
		// An uncompilable schema is the tool author's bug, not the
		// model's; skip validation rather than failing every call.
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// compiledSchema returns the cached compiled schema for name, compiling
// it on first use.
func (r *ToolRegistry) compiledSchema(name string) (*jsonschema.Schema, error) {
	r.mu.RLock()
	if s, ok := r.schemas[name]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	t := r.index[name]
	r.mu.RUnlock()
	if t == nil {
		return nil, nil
	}

	var params json.RawMessage
	for _, d := range t.Definitions() {
		if d.Name == name {
			params = d.Parameters
			break
		}
	}
	if len(params) == 0 {
		r.mu.Lock()
		r.schemas[name] = nil
		r.mu.Unlock()
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".schema.json", doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile(name + ".schema.json")
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.schemas[name] = schema
	r.mu.Unlock()
	return schema, nil
}

// FuncTool adapts a plain function into a single-definition Tool.
// Convenient for tests and small capabilities.
type FuncTool struct {
	Def ToolDefinition
	Fn  func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

func (f *FuncTool) Definitions() []ToolDefinition { return []ToolDefinition{f.Def} }

func (f *FuncTool) Execute(ctx context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	return f.Fn(ctx, args)
}
