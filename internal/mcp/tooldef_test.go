package mcp

import (
	"encoding/json"
	"testing"

	"github.com/agentic/runtime/internal/runtime/types"
)

func TestManager_ToolDefinitionsEmptyWhenNoServersConnected(t *testing.T) {
	m := NewManager(&Config{Enabled: true}, nil)
	defs := m.ToolDefinitions()
	if len(defs) != 0 {
		t.Fatalf("expected no tool definitions with no connected servers, got %d", len(defs))
	}
}

func TestManager_ToolDefinitionForQualifiesNameAndRisk(t *testing.T) {
	m := NewManager(&Config{Enabled: true}, nil)
	tool := &MCPTool{Name: "read_file", Description: "reads a file", InputSchema: json.RawMessage(`{"type":"object"}`)}

	def := m.toolDefinitionFor("fs", tool)
	if def.Name != "mcp_fs_read_file" {
		t.Fatalf("Name = %q, want mcp_fs_read_file", def.Name)
	}
	if def.RiskClass != types.RiskNetworkRead {
		t.Fatalf("RiskClass = %q, want network_read", def.RiskClass)
	}
	if def.Execute == nil {
		t.Fatal("expected a non-nil Execute func")
	}
}

func TestManager_ToolDefinitionForDefaultsMissingSchema(t *testing.T) {
	m := NewManager(&Config{Enabled: true}, nil)
	tool := &MCPTool{Name: "noop"}

	def := m.toolDefinitionFor("fs", tool)
	if string(def.JSONSchema) != `{"type":"object"}` {
		t.Fatalf("JSONSchema = %s, want a minimal object schema default", def.JSONSchema)
	}
}

func TestJoinToolResultContent(t *testing.T) {
	result := &ToolCallResult{Content: []ToolResultContent{
		{Type: "text", Text: "first"},
		{Type: "image", Data: "base64data"},
		{Type: "text", Text: "second"},
	}}
	got := joinToolResultContent(result)
	if got != "first\nsecond" {
		t.Fatalf("joinToolResultContent() = %q", got)
	}
}

func TestJoinToolResultContent_Nil(t *testing.T) {
	if got := joinToolResultContent(nil); got != "" {
		t.Fatalf("joinToolResultContent(nil) = %q, want empty", got)
	}
}
