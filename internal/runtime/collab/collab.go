// Package collab defines the external collaborator interfaces the core
// orchestration layer consumes (spec §6). Concrete implementations (a wire
// client for a specific LLM provider, a routing classifier, individual tool
// implementations, a trace store, ...) live outside this module; the core
// is built and tested entirely against these interfaces.
package collab

import (
	"context"

	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/pkg/models"
)

// ChatRequest is the payload passed to an LLMClient.Chat call.
type ChatRequest struct {
	Messages        []CompletionMessage
	Model           string
	APIKey          string
	Temperature     float64
	Timeout         int64 // milliseconds
	MaxTokens       int
	Tools           []types.ToolDefinition
	ToolChoice      string
	ResponseFormat  string
}

// CompletionMessage is a single role/content turn sent to the model.
type CompletionMessage struct {
	Role    models.Role
	Content string
}

// ChatResponse is what the LLM client returns.
type ChatResponse struct {
	Content string
}

// LLMClient is the external LLM wire client. Must be cancellable via ctx.
type LLMClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// ResolveRequest is the payload passed to the model resolver.
type ResolveRequest struct {
	GuildID       string
	Messages      []CompletionMessage
	Route         types.Route
	AllowedModels []string
	FeatureFlags  map[string]bool
}

// ResolveDecision records one step the resolver took while narrowing
// candidates (e.g. "tenant allowlist excluded model X").
type ResolveDecision struct {
	Step   string
	Detail string
}

// ResolveResponse is the resolver's chosen model plus the candidates it
// considered, for trace/debug purposes.
type ResolveResponse struct {
	Model            string
	Candidates       []string
	Route            types.Route
	Decisions        []ResolveDecision
	AllowlistApplied bool
}

// ModelResolver is the external routing/model-selection collaborator.
type ModelResolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (ResolveResponse, error)
}

// ContextRunRequest is the payload passed to the context-provider
// collaborator for one provider name.
type ContextRunRequest struct {
	Providers   []string
	GuildID     string
	ChannelID   string
	UserID      string
	TraceID     string
	SkipMemory  bool
}

// ContextProviders runs the named providers and returns their packets. Each
// context-graph node adapter is typically a thin wrapper calling this with
// a single provider name.
type ContextProviders interface {
	Run(ctx context.Context, req ContextRunRequest) ([]types.ContextPacket, error)
}

// TraceRepo is the append-only trace store.
type TraceRepo interface {
	UpsertTraceStart(ctx context.Context, traceID string, fields map[string]any) error
	ReplaceAgentRuns(ctx context.Context, traceID string, rows []map[string]any) error
	UpdateTraceEnd(ctx context.Context, traceID string, fields map[string]any) error
	ListRecentTraces(ctx context.Context, limit int, guildID, channelID string) ([]TraceRecord, error)
}

// TraceRecord is one row returned by ListRecentTraces.
type TraceRecord struct {
	TraceID   string
	GuildID   string
	ChannelID string
	RouteKind types.Route
	Outcome   map[string]any
}

// CanaryStateRepo persists the CanaryState singleton row.
type CanaryStateRepo interface {
	ReadPersistedCanaryState(ctx context.Context) (*types.CanaryState, error)
	WritePersistedCanaryState(ctx context.Context, state types.CanaryState) error
	ClearPersistedCanaryState(ctx context.Context) error
}

// SummaryStore, TranscriptRingBuffer, TenantPolicyRepo, and GuildSettingsRepo
// are read-only enrichment collaborators (spec §6); the core only ever
// reads from them while assembling prompts.
type SummaryStore interface {
	GetSummary(ctx context.Context, sessionID string) (string, error)
}

type TranscriptRingBuffer interface {
	Recent(ctx context.Context, sessionID string, n int) ([]models.Message, error)
}

type TenantPolicyRepo interface {
	GetTenantPolicyJSON(ctx context.Context, guildID string) ([]byte, error)
}

type GuildSettingsRepo interface {
	GetGuildSettings(ctx context.Context, guildID string) (map[string]any, error)
}
