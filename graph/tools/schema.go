package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompiledSchema wraps a compiled JSON Schema for one tool's arguments.
type CompiledSchema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema parses and compiles raw as a JSON Schema document for the
// named tool. A nil or empty raw is treated as "no schema" and Validate
// always succeeds.
func CompileSchema(name string, raw json.RawMessage) (*CompiledSchema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tool %q: parse schema: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resourceName := "tool:" + name
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("tool %q: add schema resource: %w", name, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("tool %q: compile schema: %w", name, err)
	}
	return &CompiledSchema{name: name, schema: schema}, nil
}

// Validate checks arguments (a JSON text) against the compiled schema. A nil
// CompiledSchema (no schema declared) always validates.
func (s *CompiledSchema) Validate(arguments json.RawMessage) error {
	if s == nil || s.schema == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(arguments, &doc); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return err
	}
	return nil
}
