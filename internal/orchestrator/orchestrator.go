// Package orchestrator implements component H from spec §4.H: it sequences
// the canary admission decision, the context-graph executor, the tool-call
// loop (or search pipeline), the hard-evidence gate, the critic loop, and
// the response validator, then writes the trace and the final safety net.
//
// Grounded on the teacher's internal/agent/runtime.go (Runtime.run
// top-level sequencing) and trace.go/event_emitter.go (trace
// start/end bookkeeping).
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentic/runtime/internal/canary"
	"github.com/agentic/runtime/internal/critic"
	"github.com/agentic/runtime/internal/ctxgraph"
	"github.com/agentic/runtime/internal/registry"
	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/internal/search"
	"github.com/agentic/runtime/internal/toolloop"
	"github.com/agentic/runtime/internal/validator"
	"github.com/agentic/runtime/pkg/models"
)

// Params is one turn's input.
type Params struct {
	TraceID              string
	GuildID              string
	ChannelID            string
	UserID               string
	Route                types.Route
	UserMessage          string
	Graph                types.AgentGraph
	NodeAdapters         map[string]ctxgraph.NodeAdapter
	VoiceActive          bool
	FilesAttached        bool
	RequiresToolEvidence bool
	MinSuccessfulCalls   int
	Model                string
	HasUserURL           string
	RecentTurns          []string
	CurrentDate          string
}

// Collaborators bundles every component and external collaborator the
// orchestrator drives. Any field may be left nil/zero for turns that don't
// exercise that component (e.g. a search pipeline when Route != search).
type Collaborators struct {
	LLM            collab.LLMClient
	TraceRepo      collab.TraceRepo
	Canary         *canary.Controller
	CanaryConfig   canary.Config
	Registry       *registry.Registry
	Policy         registry.Policy
	GraphPolicy    types.GraphPolicy
	MaxParallel    int
	ToolLoopConfig toolloop.Config
	SearchConfig   search.Config
	SearchRequest  search.Request
	CriticConfig   critic.Config
	CriticHooks    critic.Hooks
	ValidatorPolicies map[types.Route]validator.RoutePolicy
	RepairFn       validator.RepairFn
}

// Run implements runTurn(params) -> TurnResult (spec §3, §4.H).
func Run(ctx context.Context, params Params, collabs Collaborators) types.TurnResult {
	now := time.Now()
	traceFields := map[string]any{
		"traceId":   params.TraceID,
		"guildId":   params.GuildID,
		"channelId": params.ChannelID,
		"route":     string(params.Route),
		"startedAt": now.Format(time.RFC3339),
	}
	if collabs.TraceRepo != nil {
		_ = collabs.TraceRepo.UpsertTraceStart(ctx, params.TraceID, traceFields)
	}

	var graphFailedTasks int
	var hardGateUnmet bool
	var toolLoopFailed bool
	var agentEvents []ctxgraph.Event

	admission := types.AdmissionDecision{AllowAgentic: true, Reason: types.ReasonDisabled}
	if collabs.Canary != nil {
		admission = collabs.Canary.Evaluate(ctx, params.TraceID, params.Route, params.GuildID, collabs.CanaryConfig, now)
	}

	var blackboard *types.Blackboard
	var draft string

	if !admission.AllowAgentic {
		draft = directReply(ctx, collabs.LLM, params)
		blackboard = types.NewBlackboard()
	} else {
		graphResult := ctxgraph.Execute(ctx, params.TraceID, params.Graph, params.NodeAdapters, collabs.GraphPolicy, collabs.MaxParallel)
		blackboard = graphResult.Blackboard
		agentEvents = graphResult.Events
		counters, _ := blackboard.Snapshot()
		graphFailedTasks = counters.FailedTasks

		messages := buildMessages(params, blackboard)

		if params.Route == types.RouteSearch && collabs.SearchConfig.Mode != "" {
			draft, toolLoopFailed = runSearchRoute(ctx, collabs, params, messages)
		} else {
			loopRes, err := toolloop.Run(ctx, collabs.LLM, messages, collabs.Registry, collabs.Policy, params.Route, params.Model, collabs.ToolLoopConfig)
			if err != nil {
				draft = types.SentinelTransport
				toolLoopFailed = true
			} else {
				draft = loopRes.ReplyText
				if params.RequiresToolEvidence {
					successCount := countSuccesses(loopRes.ToolResults)
					if successCount < params.MinSuccessfulCalls {
						forced := append(append([]collab.CompletionMessage(nil), messages...),
							collab.CompletionMessage{Role: models.RoleUser, Content: "You must use the available tools to verify your answer before replying."})
						retryRes, retryErr := toolloop.Run(ctx, collabs.LLM, forced, collabs.Registry, collabs.Policy, params.Route, params.Model, collabs.ToolLoopConfig)
						if retryErr != nil || countSuccesses(retryRes.ToolResults) < params.MinSuccessfulCalls {
							draft = types.SentinelHardGate
							hardGateUnmet = true
						} else {
							draft = retryRes.ReplyText
						}
					}
				}
			}
		}
	}

	if !hardGateUnmet && critic.Eligible(params.Route, params.VoiceActive, params.FilesAttached, draft, toolLoopFailed) {
		outcome := critic.Run(ctx, params.Route, draft, collabs.CriticConfig, collabs.CriticHooks)
		draft = outcome.FinalDraft
	}

	if !hardGateUnmet {
		if policy, ok := collabs.ValidatorPolicies[params.Route]; ok {
			repaired, _, blocked := validator.Validate(ctx, draft, policy, collabs.RepairFn)
			draft = repaired
			_ = blocked
		}
	}

	draft = applyFinalSafetyNet(draft, params.UserMessage)

	reasonCodes := canary.ReasonCodesFromOutcome(graphFailedTasks, hardGateUnmet, toolLoopFailed)
	success := !hardGateUnmet && !toolLoopFailed && graphFailedTasks == 0
	if collabs.Canary != nil {
		collabs.Canary.Record(ctx, success, reasonCodes, collabs.CanaryConfig, time.Now())
	}

	_, artifacts := blackboard.Snapshot()
	files := types.ArtifactsToAttachments(artifacts)

	traceJSON, _ := json.Marshal(map[string]any{
		"traceId":     params.TraceID,
		"agentEvents": agentEvents,
		"reasonCodes": reasonCodes,
	})
	if collabs.TraceRepo != nil {
		_ = collabs.TraceRepo.UpdateTraceEnd(ctx, params.TraceID, map[string]any{
			"finishedAt":  time.Now().Format(time.RFC3339),
			"reasonCodes": reasonCodes,
		})
	}

	return types.TurnResult{
		ReplyText: draft,
		Files:     files,
		Debug: types.DebugInfo{
			TraceJSON: traceJSON,
		},
	}
}

func directReply(ctx context.Context, client collab.LLMClient, params Params) string {
	if client == nil {
		return types.SentinelTransport
	}
	resp, err := client.Chat(ctx, collab.ChatRequest{
		Model: params.Model,
		Messages: []collab.CompletionMessage{
			{Role: models.RoleUser, Content: params.UserMessage},
		},
	})
	if err != nil {
		return types.SentinelTransport
	}
	return resp.Content
}

func buildMessages(params Params, blackboard *types.Blackboard) []collab.CompletionMessage {
	_, artifacts := blackboard.Snapshot()
	msgs := make([]collab.CompletionMessage, 0, len(artifacts)+1)
	for _, a := range artifacts {
		if a.Kind == types.ArtifactContextPacket && a.Content != "" {
			msgs = append(msgs, collab.CompletionMessage{Role: models.RoleSystem, Content: a.Label + ": " + a.Content})
		}
	}
	msgs = append(msgs, collab.CompletionMessage{Role: models.RoleUser, Content: params.UserMessage})
	return msgs
}

func countSuccesses(results []types.ToolResult) int {
	n := 0
	for _, r := range results {
		if !r.IsError {
			n++
		}
	}
	return n
}

func runSearchRoute(ctx context.Context, collabs Collaborators, params Params, messages []collab.CompletionMessage) (string, bool) {
	if collabs.Registry != nil && len(collabs.Registry.AsToolDefinitions()) > 0 {
		res, err := search.RunToolLoopPass(ctx, collabs.LLM, messages, collabs.Registry, collabs.Policy, params.Route, params.Model, collabs.ToolLoopConfig, collabs.SearchConfig)
		if err == nil {
			return res.Findings, false
		}
	}

	req := collabs.SearchRequest
	req.UserRequest = params.UserMessage
	req.HasUserURL = params.HasUserURL
	req.RecentTurns = params.RecentTurns
	req.CurrentDate = params.CurrentDate

	res, err := search.RunGuardedChain(ctx, collabs.LLM, req, collabs.SearchConfig)
	if err != nil {
		return types.SentinelHardGate, true
	}
	if collabs.SearchConfig.Mode == search.ModeComplex {
		res, _ = search.RunDualSourceCrossCheck(ctx, collabs.LLM, req, collabs.SearchConfig, res)
		summarized, serr := search.RunSummarizerPass(ctx, collabs.LLM, params.Model, res.Findings, params.UserMessage, req.PriorDraft, params.CurrentDate)
		if serr == nil {
			return summarized, false
		}
	}
	return res.Findings, false
}

// applyFinalSafetyNet implements spec §4.H's final safety net: if the
// resulting text still contains a leaked tool-call envelope fragment (and
// the user did not explicitly ask for one), redact or substitute the
// finalization sentinel.
func applyFinalSafetyNet(draft, userMessage string) string {
	if _, leaked := validator.DetectEnvelopeLeak(draft); !leaked {
		return draft
	}
	if explicitlyAskedForJSON(userMessage) {
		return draft
	}
	if residual, ok := validator.StripEnvelopeLeak(draft); ok {
		return residual
	}
	return types.SentinelFinalize
}

// explicitlyAskedForJSON is conservatively always false: detecting an
// explicit user request for raw JSON is a routing-classifier concern that
// isn't threaded into Params, so the safety net never suppresses itself.
func explicitlyAskedForJSON(userMessage string) bool {
	return false
}
