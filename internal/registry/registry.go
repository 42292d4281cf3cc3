// Package registry implements the tool catalog and policy gate from spec
// §4.B: a schema-validated registry (grounded on the teacher's
// internal/agent/tool_registry.go Execute/AsLLMTools shape) layered with a
// merged allow/deny policy (grounded on internal/tools/policy's
// profile/group/resolver idiom).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxArgsBytes is the serialized-args size ceiling (spec §4.B: "<= 10 KiB
// after stringification").
const MaxArgsBytes = 10 * 1024

// ErrDuplicateTool is returned by Register when the name already exists.
var ErrDuplicateTool = fmt.Errorf("duplicate_tool")

// Registry is the effectively-immutable-after-startup tool catalog (spec §5).
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]types.ToolDefinition
	schemas map[string]*jsonschema.Schema
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]types.ToolDefinition),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool definition, compiling its JSON schema up front so
// ValidateCall never pays compile cost per call.
func (r *Registry) Register(def types.ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return ErrDuplicateTool
	}
	var schema *jsonschema.Schema
	if len(def.JSONSchema) > 0 {
		compiler := jsonschema.NewCompiler()
		resourceName := def.Name + ".json"
		if err := compiler.AddResource(resourceName, bytes.NewReader(def.JSONSchema)); err != nil {
			return fmt.Errorf("compile schema for %s: %w", def.Name, err)
		}
		compiled, err := compiler.Compile(resourceName)
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", def.Name, err)
		}
		schema = compiled
	}
	r.tools[def.Name] = def
	if schema != nil {
		r.schemas[def.Name] = schema
	}
	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (types.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// AsToolDefinitions returns every registered tool, for advertising to the LLM.
func (r *Registry) AsToolDefinitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ValidateResult is the ValidateCall return value.
type ValidateResult struct {
	OK   bool
	Args json.RawMessage
	Err  error
}

// ValidateCall checks (1) name registered, (2) args serializable and <= 10
// KiB, (3) args pass the tool's JSON schema (spec §4.B registry contract).
func (r *Registry) ValidateCall(name string, args json.RawMessage) ValidateResult {
	r.mu.RLock()
	_, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return ValidateResult{Err: fmt.Errorf("tool not found: %s", name)}
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if len(args) > MaxArgsBytes {
		return ValidateResult{Err: fmt.Errorf("tool arguments exceed %d bytes", MaxArgsBytes)}
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return ValidateResult{Err: fmt.Errorf("tool arguments are not valid JSON: %w", err)}
	}
	if schema != nil {
		if err := schema.Validate(decoded); err != nil {
			return ValidateResult{Err: fmt.Errorf("tool arguments failed schema validation: %w", err)}
		}
	}
	return ValidateResult{OK: true, Args: args}
}

// Execute runs a registered tool by name, after the caller has already
// validated args via ValidateCall and cleared policy via Evaluate.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (types.ToolResult, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return types.ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}
	return def.Execute(ctx, args)
}
