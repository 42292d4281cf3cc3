package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agentic/runtime/internal/runtime/types"
)

const maxToolNameLen = 64

// ToolPolicyRegistrar allows MCP tools to be mapped into policy systems.
type ToolPolicyRegistrar interface {
	RegisterAlias(alias string, canonical string)
	RegisterMCPServer(serverID string, tools []string)
}

// ResourceAndPromptToolDefinitions converts every connected server's
// resources/list, resources/read, prompts/list, and prompts/get surface
// into registry-ready types.ToolDefinition values, using the same
// server-qualified safe-naming scheme as ToolDefinitions. Grounded on the
// teacher's tool bridge, which exposed this surface to its single-process
// runtime via the same four synthetic tool names per server; here they are
// adapted into the registry's value-typed ToolDefinition closures instead
// of runtime.RegisterTool calls, and optionally registered with registrar
// so policy can alias them.
func (m *Manager) ResourceAndPromptToolDefinitions(registrar ToolPolicyRegistrar) []types.ToolDefinition {
	used := make(map[string]struct{})
	for _, def := range m.ToolDefinitions() {
		used[def.Name] = struct{}{}
	}

	var defs []types.ToolDefinition
	serverTools := make(map[string][]string)
	for _, serverID := range listServerIDs(m) {
		resListName := safeToolName(serverID, "resources_list", used)
		resReadName := safeToolName(serverID, "resource_read", used)
		promptListName := safeToolName(serverID, "prompts_list", used)
		promptGetName := safeToolName(serverID, "prompt_get", used)

		defs = append(defs,
			m.resourceListDefinition(serverID, resListName),
			m.resourceReadDefinition(serverID, resReadName),
			m.promptListDefinition(serverID, promptListName),
			m.promptGetDefinition(serverID, promptGetName),
		)

		serverTools[serverID] = append(serverTools[serverID],
			"resources.list", "resources.read", "prompts.list", "prompts.get")

		if registrar != nil {
			registrar.RegisterAlias(resListName, canonicalResourceList(serverID))
			registrar.RegisterAlias(resReadName, canonicalResourceRead(serverID))
			registrar.RegisterAlias(promptListName, canonicalPromptList(serverID))
			registrar.RegisterAlias(promptGetName, canonicalPromptGet(serverID))
		}
	}

	if registrar != nil {
		for serverID, names := range serverTools {
			registrar.RegisterMCPServer(serverID, names)
		}
	}
	return defs
}

func (m *Manager) resourceListDefinition(serverID, name string) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        name,
		Description: fmt.Sprintf("List MCP resources for %s", serverID),
		JSONSchema:  json.RawMessage(`{"type":"object"}`),
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			resources := m.AllResources()[serverID]
			payload, err := json.Marshal(resources)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return types.ToolResult{Content: string(payload)}, nil
		},
	}
}

func (m *Manager) resourceReadDefinition(serverID, name string) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        name,
		Description: fmt.Sprintf("Read an MCP resource from %s (provide uri)", serverID),
		JSONSchema:  json.RawMessage(`{"type":"object","properties":{"uri":{"type":"string"}},"required":["uri"]}`),
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var input struct {
				URI string `json:"uri"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return types.ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
			}
			if strings.TrimSpace(input.URI) == "" {
				return types.ToolResult{Content: "uri is required", IsError: true}, nil
			}
			contents, err := m.ReadResource(ctx, serverID, input.URI)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			content, isError := formatResourceContents(contents)
			return types.ToolResult{Content: content, IsError: isError}, nil
		},
	}
}

func (m *Manager) promptListDefinition(serverID, name string) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        name,
		Description: fmt.Sprintf("List MCP prompts for %s", serverID),
		JSONSchema:  json.RawMessage(`{"type":"object"}`),
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			prompts := m.AllPrompts()[serverID]
			payload, err := json.Marshal(prompts)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return types.ToolResult{Content: string(payload)}, nil
		},
	}
}

func (m *Manager) promptGetDefinition(serverID, name string) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        name,
		Description: fmt.Sprintf("Fetch an MCP prompt from %s (provide name, arguments)", serverID),
		JSONSchema:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"arguments":{"type":"object"}},"required":["name"]}`),
		RiskClass:   types.RiskNetworkRead,
		Execute: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var input struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments,omitempty"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return types.ToolResult{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
			}
			if strings.TrimSpace(input.Name) == "" {
				return types.ToolResult{Content: "name is required", IsError: true}, nil
			}
			result, err := m.GetPrompt(ctx, serverID, input.Name, input.Arguments)
			if err != nil {
				return types.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			content, isError := formatPromptResult(result)
			return types.ToolResult{Content: content, IsError: isError}, nil
		},
	}
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool {
			return tools[i].Name < tools[j].Name
		})
		for _, tool := range tools {
			entries = append(entries, toolEntry{serverID: serverID, tool: tool})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}

	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}

	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

func formatResourceContents(contents []*ResourceContent) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text, false
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func formatPromptResult(result *GetPromptResult) (string, bool) {
	if result == nil || len(result.Messages) == 0 {
		return "", false
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text, false
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func canonicalResourceList(serverID string) string {
	return fmt.Sprintf("mcp:%s.resources.list", serverID)
}

func canonicalResourceRead(serverID string) string {
	return fmt.Sprintf("mcp:%s.resources.read", serverID)
}

func canonicalPromptList(serverID string) string {
	return fmt.Sprintf("mcp:%s.prompts.list", serverID)
}

func canonicalPromptGet(serverID string) string {
	return fmt.Sprintf("mcp:%s.prompts.get", serverID)
}
