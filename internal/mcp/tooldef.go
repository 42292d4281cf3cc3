package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentic/runtime/internal/runtime/types"
)

// ToolDefinitions converts every tool currently advertised by the manager's
// connected servers into registry-ready types.ToolDefinition values, name
// qualified as "mcp_<server>_<tool>" to avoid collisions across servers.
// Grounded on manager.go's AllTools/CallTool and tool_summaries.go's
// server-qualified naming convention. Every adapted tool is classified
// RiskNetworkRead: an MCP server is an external process reached over its
// configured transport, so a call is at minimum a network/IPC read even
// when the underlying capability does more.
func (m *Manager) ToolDefinitions() []types.ToolDefinition {
	entries := listToolsSorted(m)
	defs := make([]types.ToolDefinition, 0, len(entries))
	for _, entry := range entries {
		defs = append(defs, m.toolDefinitionFor(entry.serverID, entry.tool))
	}
	return defs
}

func (m *Manager) toolDefinitionFor(serverID string, tool *MCPTool) types.ToolDefinition {
	qualifiedName := "mcp_" + serverID + "_" + tool.Name
	schema := tool.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return types.ToolDefinition{
		Name:        qualifiedName,
		Description: tool.Description,
		JSONSchema:  schema,
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var decoded map[string]any
			if len(args) > 0 {
				if err := json.Unmarshal(args, &decoded); err != nil {
					return types.ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
				}
			}
			result, err := m.CallTool(ctx, serverID, tool.Name, decoded)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return types.ToolResult{Content: joinToolResultContent(result), IsError: result.IsError}, nil
		},
	}
}

// joinToolResultContent flattens an MCP ToolCallResult's content blocks into
// the single text string types.ToolResult expects, keeping only text
// segments (image/resource content has no plain-text representation the
// tool-call loop can feed back to the model).
func joinToolResultContent(result *ToolCallResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
