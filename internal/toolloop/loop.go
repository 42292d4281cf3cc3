package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentic/runtime/internal/registry"
	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Config carries the closed set of tool-loop tunables (spec §4.D).
type Config struct {
	MaxRounds                int
	MaxCallsPerRound         int
	CacheMaxEntries          int
	ToolTimeoutMs            int64
	MaxParallelReadOnlyTools int
	MaxToolResultChars       int
}

// DefaultConfig matches the teacher's tool-exec defaults in shape
// (concurrency=4, per-call timeout=30s), scaled to the loop-level knobs.
func DefaultConfig() Config {
	return Config{
		MaxRounds:                4,
		MaxCallsPerRound:         8,
		CacheMaxEntries:          256,
		ToolTimeoutMs:            30000,
		MaxParallelReadOnlyTools: 4,
		MaxToolResultChars:       2000,
	}
}

// PolicyDecision records one call's registry.Evaluate outcome for trace
// purposes, including truncation decisions.
type PolicyDecision struct {
	CallIndex int
	ToolName  string
	Code      registry.Code
}

// FinalizationFallback is returned when both the normal round budget and
// the plain-text-only finalization call fail to produce usable text (spec
// §4.D round protocol step 6).
const FinalizationFallback = "I could not finalize a plain-text answer after tool execution. Please try again."

// Result is run()'s return value.
type Result struct {
	ReplyText             string
	ToolsExecuted         bool
	RoundsCompleted       int
	ToolResults           []types.ToolResult
	PolicyDecisions       []PolicyDecision
	DeduplicatedCallCount int
}

// Run implements the tool-call loop contract from spec §4.D.
func Run(ctx context.Context, client collab.LLMClient, messages []collab.CompletionMessage, reg *registry.Registry, policy registry.Policy, route types.Route, model string, cfg Config) (Result, error) {
	cache := newResultCache(cfg.CacheMaxEntries)
	result := Result{}
	convo := append([]collab.CompletionMessage(nil), messages...)

	for round := 1; round <= cfg.MaxRounds; round++ {
		text, env, isEnvelope, ambiguousGaveUp, err := fetchRound(ctx, client, convo, reg, model)
		if err != nil {
			return result, err
		}
		result.RoundsCompleted = round

		if !isEnvelope {
			// text is either plain model output, or the best-effort plain
			// reply from the single corrective retry (ambiguousGaveUp) —
			// both are valid terminal replies per spec's envelope detection.
			_ = ambiguousGaveUp
			result.ReplyText = text
			result.ToolsExecuted = round > 1
			return result, nil
		}

		calls, truncated := registry.TruncateToRound(env.Calls, policy)
		if truncated {
			for i := len(calls); i < len(env.Calls); i++ {
				result.PolicyDecisions = append(result.PolicyDecisions, PolicyDecision{
					CallIndex: i,
					ToolName:  env.Calls[i].Name,
					Code:      registry.CodeMaxCallsPerRoundTruncated,
				})
			}
		}

		roundResults := dispatchRound(ctx, reg, policy, route, calls, cache, cfg, &result)
		result.ToolResults = append(result.ToolResults, roundResults...)
		result.ToolsExecuted = true

		convo = append(convo, collab.CompletionMessage{Role: models.RoleAssistant, Content: text})
		convo = append(convo, collab.CompletionMessage{
			Role:    models.RoleTool,
			Content: summarizeToolResults(calls, roundResults, cfg.MaxToolResultChars),
		})
	}

	// Round budget exhausted while the model kept returning envelopes: one
	// final plain-text-only call with no tools advertised.
	finalResp, err := client.Chat(ctx, collab.ChatRequest{Messages: convo, Model: model})
	if err != nil || strings.TrimSpace(finalResp.Content) == "" {
		result.ReplyText = FinalizationFallback
		return result, nil
	}
	if _, ok, _ := ParseEnvelope(finalResp.Content); ok {
		result.ReplyText = FinalizationFallback
		return result, nil
	}
	result.ReplyText = finalResp.Content
	return result, nil
}

// fetchRound calls the model once, applying the single corrective retry on
// an ambiguous (malformed) envelope attempt (spec §4.D envelope detection).
func fetchRound(ctx context.Context, client collab.LLMClient, convo []collab.CompletionMessage, reg *registry.Registry, model string) (text string, env types.ToolCallEnvelope, isEnvelope bool, ambiguousGaveUp bool, err error) {
	resp, err := client.Chat(ctx, collab.ChatRequest{
		Messages: convo,
		Model:    model,
		Tools:    reg.AsToolDefinitions(),
	})
	if err != nil {
		return "", types.ToolCallEnvelope{}, false, false, err
	}

	parsed, ok, ambiguous := ParseEnvelope(resp.Content)
	if ok {
		return resp.Content, parsed, true, false, nil
	}
	if !ambiguous {
		return resp.Content, types.ToolCallEnvelope{}, false, false, nil
	}

	corrective := append(append([]collab.CompletionMessage(nil), convo...),
		collab.CompletionMessage{Role: models.RoleAssistant, Content: resp.Content},
		collab.CompletionMessage{Role: models.RoleUser, Content: "Your previous reply looked like a malformed tool-call envelope. Reply with EITHER a valid {\"type\":\"tool_calls\",\"calls\":[...]} JSON object, or plain text with no JSON at all."},
	)
	resp2, err2 := client.Chat(ctx, collab.ChatRequest{Messages: corrective, Model: model, Tools: reg.AsToolDefinitions()})
	if err2 != nil {
		return resp.Content, types.ToolCallEnvelope{}, false, true, nil
	}
	parsed2, ok2, _ := ParseEnvelope(resp2.Content)
	if ok2 {
		return resp2.Content, parsed2, true, false, nil
	}
	return resp2.Content, types.ToolCallEnvelope{}, false, true, nil
}

// dispatchRound runs each call in order, classifying read-only tools
// (benign, network_read) for bounded concurrent dispatch while mutating
// tools run sequentially (spec §4.D round protocol steps 3-4).
func dispatchRound(ctx context.Context, reg *registry.Registry, policy registry.Policy, route types.Route, calls []types.ToolCall, cache *resultCache, cfg Config, agg *Result) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	i := 0
	for i < len(calls) {
		def, _ := reg.Get(calls[i].Name)
		if isReadOnly(def.RiskClass) {
			j := i
			for j < len(calls) {
				d, _ := reg.Get(calls[j].Name)
				if !isReadOnly(d.RiskClass) {
					break
				}
				j++
			}
			runBatchConcurrently(ctx, reg, policy, route, calls[i:j], i, results, cache, cfg, agg)
			i = j
			continue
		}
		results[i] = runOneCall(ctx, reg, policy, route, calls[i], i, cache, cfg, agg)
		i++
	}
	return results
}

func isReadOnly(risk types.RiskClass) bool {
	return risk == types.RiskBenign || risk == types.RiskNetworkRead
}

func runBatchConcurrently(ctx context.Context, reg *registry.Registry, policy registry.Policy, route types.Route, batch []types.ToolCall, offset int, results []types.ToolResult, cache *resultCache, cfg Config, agg *Result) {
	maxParallel := cfg.MaxParallelReadOnlyTools
	if maxParallel <= 0 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)
	g, gctx := errgroup.WithContext(ctx)
	for idx, call := range batch {
		idx, call := idx, call
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			results[offset+idx] = runOneCall(gctx, reg, policy, route, call, offset+idx, cache, cfg, agg)
			return nil
		})
	}
	_ = g.Wait()
}

func runOneCall(ctx context.Context, reg *registry.Registry, policy registry.Policy, route types.Route, call types.ToolCall, index int, cache *resultCache, cfg Config, agg *Result) types.ToolResult {
	allowed, code := reg.Evaluate(call.Name, route, policy)
	recordDecision(agg, index, call.Name, code)
	if !allowed {
		return types.ToolResult{Content: string(code), IsError: true}
	}

	validated := reg.ValidateCall(call.Name, call.Args)
	if !validated.OK {
		return types.ToolResult{Content: validated.Err.Error(), IsError: true}
	}

	key, err := CacheKey(call.Name, validated.Args)
	if err == nil {
		if cached, hit := cache.get(key); hit {
			recordDedup(agg)
			return cached
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ToolTimeoutMs)*time.Millisecond)
	defer cancel()
	res, execErr := reg.Execute(timeoutCtx, call.Name, validated.Args)
	if execErr != nil {
		return types.ToolResult{Content: execErr.Error(), IsError: true}
	}
	if !res.IsError && err == nil {
		cache.put(key, res)
	}
	return res
}

func recordDecision(agg *Result, index int, name string, code registry.Code) {
	agg.PolicyDecisions = append(agg.PolicyDecisions, PolicyDecision{CallIndex: index, ToolName: name, Code: code})
}

func recordDedup(agg *Result) {
	agg.DeduplicatedCallCount++
}

func summarizeToolResults(calls []types.ToolCall, results []types.ToolResult, maxChars int) string {
	var sb strings.Builder
	for i, call := range calls {
		if i >= len(results) {
			break
		}
		content := results[i].Content
		if maxChars > 0 && len(content) > maxChars {
			content = content[:maxChars] + "...(truncated)"
		}
		status := "ok"
		if results[i].IsError {
			status = "error"
		}
		fmt.Fprintf(&sb, "tool %s(%s) -> [%s] %s\n", call.Name, compactArgs(call.Args), status, content)
	}
	return sb.String()
}

func compactArgs(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}
