package ai

import (
	"encoding/json"
	"strings"
	"testing"
)

const readFileSchema = `{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`

func TestValidateTools(t *testing.T) {
	testCases := []struct {
		name    string
		tools   []Tool
		wantErr string
	}{
		{name: "nil catalog", tools: nil},
		{name: "valid tools", tools: []Tool{
			{Name: "read_file", InputSchema: json.RawMessage(readFileSchema)},
			{Name: "now"},
		}},
		{name: "empty name", tools: []Tool{{Name: ""}}, wantErr: "empty name"},
		{name: "duplicate name", tools: []Tool{{Name: "a"}, {Name: "a"}}, wantErr: "duplicate"},
		{name: "broken schema", tools: []Tool{{Name: "a", InputSchema: json.RawMessage(`{"type":`)}}, wantErr: `tool "a"`},
		{name: "invalid schema keyword", tools: []Tool{{Name: "a", InputSchema: json.RawMessage(`{"type":"nope"}`)}}, wantErr: "compile schema"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := ValidateTools(testCase.tools)
			if testCase.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error containing %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestTool_ValidateInput(t *testing.T) {
	tool := Tool{Name: "read_file", InputSchema: json.RawMessage(readFileSchema)}

	if err := tool.ValidateInput(json.RawMessage(`{"path":"main.go"}`)); err != nil {
		t.Errorf("valid arguments rejected: %v", err)
	}
	if err := tool.ValidateInput(json.RawMessage(`{"path":3}`)); err == nil {
		t.Error("expected type mismatch to be rejected")
	}
	if err := tool.ValidateInput(json.RawMessage(`{}`)); err == nil {
		t.Error("expected missing required property to be rejected")
	}
	if err := tool.ValidateInput(json.RawMessage(`{"path":`)); err == nil {
		t.Error("expected invalid JSON to be rejected")
	}
}
