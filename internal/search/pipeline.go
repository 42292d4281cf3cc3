package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentic/runtime/internal/registry"
	"github.com/agentic/runtime/internal/runtime/collab"
	"github.com/agentic/runtime/internal/runtime/types"
	"github.com/agentic/runtime/internal/toolloop"
	"github.com/agentic/runtime/pkg/models"
)

// Mode is simple vs complex search (spec §4.E).
type Mode string

const (
	ModeSimple  Mode = "simple"
	ModeComplex Mode = "complex"
)

// Config carries the closed set of search-pipeline tunables.
type Config struct {
	Mode                   Mode
	MaxAttemptsSimple      int
	MaxAttemptsComplex     int
	MinRequiredSourcesSimple  int
	MinRequiredSourcesComplex int
	SnapshotMaxChars       int
	RecentTurnCount        int
	DualSourceDeadlineMs   int64
	RequiresToolEvidence   bool
	MinSuccessfulToolCalls int
}

// DefaultConfig matches the literal values named in spec §4.E.
func DefaultConfig() Config {
	return Config{
		Mode:                      ModeSimple,
		MaxAttemptsSimple:         3,
		MaxAttemptsComplex:        5,
		MinRequiredSourcesSimple:  1,
		MinRequiredSourcesComplex: 2,
		SnapshotMaxChars:          3000,
		RecentTurnCount:           6,
		DualSourceDeadlineMs:      8000,
		MinSuccessfulToolCalls:    1,
	}
}

// Request is the pipeline's input for one turn.
type Request struct {
	UserRequest       string
	HasUserURL        string // the URL the user supplied, if any
	ContextSnapshot   string
	RecentTurns       []string
	CurrentDate       string
	PriorDraft        string
	CriticFocus       string
	ScraperModel      string
	GuardrailModels   []string
	ResolverCandidates []string
	SecondaryModel    string // for dual-source cross-check
}

// Result is the pipeline's output, feeding either the final reply directly
// (simple mode) or the summarizer pass (complex mode).
type Result struct {
	Findings         string
	ModelUsed        string
	ToolLoopUsed     bool
	SuccessfulCalls  int
	HardGateUnmet    bool
	AttemptsTried    []string
}

// buildPrompt assembles the per-attempt user prompt (spec §4.E per-attempt
// protocol items a-e).
func buildPrompt(req Request, cfg Config) string {
	var sb strings.Builder
	sb.WriteString(TruncateSnapshot(req.ContextSnapshot, cfg.SnapshotMaxChars))
	sb.WriteString("\n\n")

	turns := req.RecentTurns
	if len(turns) > cfg.RecentTurnCount {
		turns = turns[len(turns)-cfg.RecentTurnCount:]
	}
	if len(turns) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range turns {
			sb.WriteString("- " + t + "\n")
		}
		sb.WriteString("\n")
	}
	if req.CurrentDate != "" {
		sb.WriteString("Current date: " + req.CurrentDate + "\n")
	}
	if req.PriorDraft != "" {
		sb.WriteString("\nPrior draft:\n" + req.PriorDraft + "\n")
	}
	if req.CriticFocus != "" {
		sb.WriteString("\nRevision focus: " + req.CriticFocus + "\n")
	}
	sb.WriteString("\nRequest: " + req.UserRequest)
	return sb.String()
}

const systemPrompt = "Reply in plain text only. Include at least one source URL. " +
	"If the request is freshness-sensitive, include a Checked-on line. Prefer primary sources."

// RunGuardedChain implements the guarded fallback chain: try each model in
// the deduplicated attempt order, applying the missing-sources and
// freshness-grounding rejection guards before accepting a reply.
func RunGuardedChain(ctx context.Context, client collab.LLMClient, req Request, cfg Config) (Result, error) {
	maxAttempts := cfg.MaxAttemptsSimple
	minRequired := cfg.MinRequiredSourcesSimple
	if cfg.Mode == ModeComplex {
		maxAttempts = cfg.MaxAttemptsComplex
		minRequired = cfg.MinRequiredSourcesComplex
	}
	chain := DedupeAttemptChain(req.ScraperModel, req.HasUserURL != "", req.GuardrailModels, req.ResolverCandidates, maxAttempts)
	needsFreshness := NeedsFreshness(req.UserRequest)
	prompt := buildPrompt(req, cfg)

	var tried []string
	for _, model := range chain {
		tried = append(tried, model)
		resp, err := client.Chat(ctx, collab.ChatRequest{
			Model: model,
			Messages: []collab.CompletionMessage{
				{Role: models.RoleSystem, Content: systemPrompt},
				{Role: models.RoleUser, Content: prompt},
			},
		})
		if err != nil {
			continue
		}
		if !MissingSourcesGuard(resp.Content) {
			continue
		}
		if !FreshnessGroundingGuard(resp.Content, needsFreshness, minRequired) {
			continue
		}
		normalized := Normalize(resp.Content, req.CurrentDate)
		return Result{Findings: normalized, ModelUsed: model, AttemptsTried: tried}, nil
	}
	return Result{AttemptsTried: tried, HardGateUnmet: cfg.RequiresToolEvidence}, fmt.Errorf("guarded chain exhausted %d attempts with no accepted reply", len(tried))
}

// RunDualSourceCrossCheck queries req.SecondaryModel with a shorter
// deadline and, if it yields a URL-bearing answer, returns the concatenated
// "Primary search findings / Secondary cross-check" block (spec §4.E).
func RunDualSourceCrossCheck(ctx context.Context, client collab.LLMClient, req Request, cfg Config, primary Result) (Result, error) {
	if req.SecondaryModel == "" || req.SecondaryModel == primary.ModelUsed {
		return primary, nil
	}
	deadline := time.Duration(cfg.DualSourceDeadlineMs) * time.Millisecond
	shortCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resp, err := client.Chat(shortCtx, collab.ChatRequest{
		Model: req.SecondaryModel,
		Messages: []collab.CompletionMessage{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: buildPrompt(req, cfg)},
		},
	})
	if err != nil || !MissingSourcesGuard(resp.Content) {
		return primary, nil
	}

	secondary := Normalize(resp.Content, req.CurrentDate)
	combined := "Primary search findings:\n" + primary.Findings + "\n\nSecondary cross-check:\n" + secondary
	out := primary
	out.Findings = combined
	return out, nil
}

// RunToolLoopPass runs the generic tool loop scoped to search tools,
// preferred over the guarded model chain whenever tools are enabled (spec
// §4.E tool-loop pass). Complex mode pins model and forbids LLM fallback
// candidates by the caller constructing cfg/policy accordingly before the
// call; this function only evaluates the observed outcome.
func RunToolLoopPass(ctx context.Context, client collab.LLMClient, messages []collab.CompletionMessage, reg *registry.Registry, policy registry.Policy, route types.Route, model string, loopCfg toolloop.Config, cfg Config) (Result, error) {
	res, err := toolloop.Run(ctx, client, messages, reg, policy, route, model, loopCfg)
	if err != nil {
		return Result{}, err
	}
	successCount := 0
	for _, tr := range res.ToolResults {
		if !tr.IsError {
			successCount++
		}
	}
	if successCount < 1 {
		hardGate := cfg.RequiresToolEvidence && successCount < cfg.MinSuccessfulToolCalls
		return Result{ToolLoopUsed: true, SuccessfulCalls: successCount, HardGateUnmet: hardGate}, fmt.Errorf("tool-loop pass produced no successful tool calls")
	}
	return Result{
		Findings:        res.ReplyText,
		ToolLoopUsed:    true,
		SuccessfulCalls: successCount,
	}, nil
}

// RunSummarizerPass feeds findings + the original request + prior draft to
// a synthesis model (spec §4.E summarizer pass, complex mode only).
func RunSummarizerPass(ctx context.Context, client collab.LLMClient, model string, findings, userRequest, priorDraft, currentDate string) (string, error) {
	system := "Treat the findings as ground truth. Prefer primary sources. " +
		"Preserve any Checked-on line. Eliminate contradictions between sources where possible."
	var prompt strings.Builder
	prompt.WriteString("Findings:\n" + findings + "\n\n")
	prompt.WriteString("Original request: " + userRequest + "\n")
	if priorDraft != "" {
		prompt.WriteString("Prior draft:\n" + priorDraft + "\n")
	}

	resp, err := client.Chat(ctx, collab.ChatRequest{
		Model: model,
		Messages: []collab.CompletionMessage{
			{Role: models.RoleSystem, Content: system},
			{Role: models.RoleUser, Content: prompt.String()},
		},
	})
	if err != nil {
		return "", err
	}

	urls := append(ExtractURLs(findings), ExtractURLs(resp.Content)...)
	normalized := Normalize(resp.Content, currentDate)
	if !strings.Contains(strings.ToLower(normalized), "source urls") && len(urls) > 0 {
		normalized += "\n\nSource URLs:\n"
		seen := map[string]bool{}
		for _, u := range urls {
			if seen[u] {
				continue
			}
			seen[u] = true
			normalized += "- " + u + "\n"
		}
		normalized = strings.TrimRight(normalized, "\n")
	}
	return normalized, nil
}
