package websearch

import (
	"context"
	"encoding/json"

	"github.com/agentic/runtime/internal/runtime/types"
)

// ToolDefinition adapts a WebSearchTool into a registry-ready
// types.ToolDefinition, classifying the tool as network_read (spec §4.B
// risk taxonomy) since it fetches external URLs but never writes anything.
func (t *WebSearchTool) ToolDefinition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		JSONSchema:  t.Schema(),
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			result, err := t.Execute(ctx, args)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return *result, nil
		},
	}
}

// ToolDefinition adapts a WebFetchTool into a registry-ready
// types.ToolDefinition. Classified network_read for the same reason as
// WebSearchTool: it reads external URLs, it never writes to them.
func (t *WebFetchTool) ToolDefinition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		JSONSchema:  t.Schema(),
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			result, err := t.Execute(ctx, args)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return *result, nil
		},
	}
}
