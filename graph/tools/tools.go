// Package tools defines the tool adapter contract consumed by the graph's
// tool node, plus JSON-Schema-backed argument validation shared by adapter
// implementations.
package tools

import (
	"context"
	"encoding/json"

	"github.com/graphrt/graphrt/graph/toolerrors"
)

// Definition advertises one callable tool: its name, a human-readable
// description, and a JSON Schema describing its arguments.
type Definition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Adapter is the collaborator contract the tool node depends on.
// Implementations are shared across runs and must be safe for concurrent
// use; ListTools is called once at graph-build time, Execute once per tool
// call.
type Adapter interface {
	// ListTools returns the set of tools this adapter can execute.
	ListTools(ctx context.Context) ([]Definition, error)
	// Execute invokes the named tool with already-parsed JSON arguments.
	// A returned *toolerrors.ToolError is always non-fatal to the run; the
	// tool node converts it into a ToolResult with status=error.
	Execute(ctx context.Context, name string, arguments json.RawMessage) (content string, err error)
}

// Registry is a simple in-process Adapter backed by a fixed map of named
// handlers, each declaring its own JSON Schema for argument validation.
// Registry compiles every schema once at construction and rejects malformed
// arguments before the handler ever runs.
type Registry struct {
	defs     []Definition
	handlers map[string]Handler
	schemas  map[string]*CompiledSchema
}

// Handler is the function signature backing one registered tool.
type Handler func(ctx context.Context, arguments json.RawMessage) (string, error)

// Entry is one tool registered with NewRegistry.
type Entry struct {
	Definition Definition
	Handler    Handler
}

// NewRegistry compiles the JSON Schema of every entry and returns a ready
// Adapter. An entry with an invalid schema is rejected with an error naming
// the offending tool, since a schema compile failure at startup is a
// programmer error, not a runtime tool failure.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		defs:     make([]Definition, 0, len(entries)),
		handlers: make(map[string]Handler, len(entries)),
		schemas:  make(map[string]*CompiledSchema, len(entries)),
	}
	for _, e := range entries {
		schema, err := CompileSchema(e.Definition.Name, e.Definition.Schema)
		if err != nil {
			return nil, err
		}
		r.defs = append(r.defs, e.Definition)
		r.handlers[e.Definition.Name] = e.Handler
		r.schemas[e.Definition.Name] = schema
	}
	return r, nil
}

// ListTools returns the registered tool definitions.
func (r *Registry) ListTools(ctx context.Context) ([]Definition, error) {
	return r.defs, nil
}

// Execute validates arguments against the tool's compiled schema, then
// invokes its handler. Validation failures and unknown tool names are
// reported as *toolerrors.ToolError, never as a generic error.
func (r *Registry) Execute(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return "", toolerrors.Errorf(toolerrors.KindUnknownTool, "unknown tool %q", name)
	}
	if schema, ok := r.schemas[name]; ok && schema != nil {
		if err := schema.Validate(arguments); err != nil {
			return "", toolerrors.NewWithCause(toolerrors.KindInvalidArguments, "invalid arguments for "+name, err)
		}
	}
	content, err := handler(ctx, arguments)
	if err != nil {
		return "", toolerrors.FromError(err)
	}
	return content, nil
}
