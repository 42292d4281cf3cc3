package websearch

import (
	"context"
	"testing"

	"github.com/agentic/runtime/internal/runtime/types"
)

func TestToolDefinition_Shape(t *testing.T) {
	tool := NewWebSearchTool(&Config{DefaultBackend: BackendDuckDuckGo})
	def := tool.ToolDefinition()

	if def.Name != "web_search" {
		t.Fatalf("Name = %q, want web_search", def.Name)
	}
	if def.RiskClass != types.RiskNetworkRead {
		t.Fatalf("RiskClass = %q, want network_read", def.RiskClass)
	}
	if len(def.JSONSchema) == 0 {
		t.Fatal("expected a non-empty JSON schema")
	}
	if def.Execute == nil {
		t.Fatal("expected a non-nil Execute func")
	}
}

func TestToolDefinition_ExecuteTranslatesInvalidParams(t *testing.T) {
	tool := NewWebSearchTool(&Config{DefaultBackend: BackendDuckDuckGo})
	def := tool.ToolDefinition()

	result, err := def.Execute(nil, []byte("not json"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for malformed args")
	}
}

func TestWebFetchTool_ToolDefinitionShape(t *testing.T) {
	tool := NewWebFetchTool(nil)
	def := tool.ToolDefinition()

	if def.Name != "web_fetch" {
		t.Fatalf("Name = %q, want web_fetch", def.Name)
	}
	if def.RiskClass != types.RiskNetworkRead {
		t.Fatalf("RiskClass = %q, want network_read", def.RiskClass)
	}
	if def.Execute == nil {
		t.Fatal("expected a non-nil Execute func")
	}
}

func TestWebFetchTool_ToolDefinitionExecuteTranslatesInvalidParams(t *testing.T) {
	tool := NewWebFetchTool(nil)
	def := tool.ToolDefinition()

	result, err := def.Execute(context.Background(), []byte("not json"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for malformed args")
	}
}
