package ai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateTools checks a tool catalog before it is sent: names must be
// non-empty and unique, and every schema must compile.
func ValidateTools(tools []Tool) error {
	seen := make(map[string]struct{}, len(tools))
	for i, tool := range tools {
		if tool.Name == "" {
			return fmt.Errorf("tool %d has an empty name", i)
		}
		if _, duplicate := seen[tool.Name]; duplicate {
			return fmt.Errorf("duplicate tool name %q", tool.Name)
		}
		seen[tool.Name] = struct{}{}

		if len(bytes.TrimSpace(tool.InputSchema)) == 0 {
			continue
		}
		if _, err := compileSchema(tool.Name, tool.InputSchema); err != nil {
			return fmt.Errorf("tool %q: %w", tool.Name, err)
		}
	}
	return nil
}

// ValidateInput checks arguments produced by the model against the tool's
// input schema. A tool without a schema accepts any JSON document.
func (t Tool) ValidateInput(arguments json.RawMessage) error {
	var document any
	if err := json.Unmarshal(arguments, &document); err != nil {
		return fmt.Errorf("tool %q: arguments are not valid JSON: %w", t.Name, err)
	}
	if len(bytes.TrimSpace(t.InputSchema)) == 0 {
		return nil
	}

	schema, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: %w", t.Name, err)
	}
	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("tool %q: %w", t.Name, err)
	}
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	resource := name + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema resource: %w", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
