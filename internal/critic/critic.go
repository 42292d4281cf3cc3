// Package critic implements the critic/revision loop from spec §4.F: a
// bounded self-critique loop that scores a draft, routes revisions either
// through a search refresh or through provider re-dispatch plus a
// route-typed revision call, and stops on pass/budget/failure.
//
// Grounded on the teacher's internal/agent/steering.go (the iterative
// "assess then steer" shape) generalized from a single steering signal to
// the spec's {score, verdict, issues, rewritePrompt} assessment contract.
package critic

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agentic/runtime/internal/runtime/types"
)

// Config bounds the loop (spec §4.F: criticMaxLoops in [0,2]).
type Config struct {
	MaxLoops int
}

// Eligible implements the route/voice/files/draft/fallback skip rules from
// spec §4.F eligibility.
func Eligible(route types.Route, voiceActive, filesAttached bool, draft string, priorSearchFallbackTerminal bool) bool {
	switch route {
	case types.RouteChat, types.RouteCoding, types.RouteSearch:
	default:
		return false
	}
	if voiceActive || filesAttached {
		return false
	}
	trimmed := strings.TrimSpace(draft)
	if trimmed == "" || strings.Contains(trimmed, "[SILENCE]") {
		return false
	}
	if priorSearchFallbackTerminal {
		return false
	}
	return true
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseAssessment leniently parses a critic response: it accepts fenced
// JSON and strips trailing commas before decoding (spec §4.F scoring).
// ok=false signals a null parse.
func ParseAssessment(raw string) (types.CriticAssessment, bool) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = trailingCommaPattern.ReplaceAllString(text, "$1")

	var out types.CriticAssessment
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return types.CriticAssessment{}, false
	}
	return out.Normalize(), true
}

// factualityFreshnessKeywords are matched case-insensitively against each
// issue string (spec §4.F revision routing: "critic issues match the
// factuality/freshness pattern").
var factualityFreshnessKeywords = []string{"factual", "freshness", "outdated", "stale", "inaccura", "date"}

// MatchesFactualityFreshness reports whether any issue matches the
// factuality/freshness pattern.
func MatchesFactualityFreshness(issues []string) bool {
	for _, issue := range issues {
		lower := strings.ToLower(issue)
		for _, kw := range factualityFreshnessKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// verifiabilityKeywords flags issues that call for tool-loop-backed
// revision rather than a plain LLM rewrite (spec §4.F: "If critic issues
// indicate verifiability problems ... run the revision through the tool
// loop instead").
var verifiabilityKeywords = []string{"verify", "verifiable", "evidence", "citation", "unverified", "source"}

// HasVerifiabilityIssues reports whether any issue calls for tool-backed
// revision.
func HasVerifiabilityIssues(issues []string) bool {
	for _, issue := range issues {
		lower := strings.ToLower(issue)
		for _, kw := range verifiabilityKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// issueProviderTable maps an issue keyword to the provider it should
// trigger a re-dispatch of (spec §4.F example: "citation" -> memory
// provider, "tone" -> social graph).
var issueProviderTable = []struct {
	keyword  string
	provider string
}{
	{"citation", "memory"},
	{"unverified", "memory"},
	{"source", "memory"},
	{"tone", "social_graph"},
	{"relationship", "social_graph"},
	{"contradicts", "memory"},
}

// ProvidersForIssues derives the set of context providers to re-dispatch
// from the critic's issue list, deduplicated and in first-match order.
func ProvidersForIssues(issues []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, issue := range issues {
		lower := strings.ToLower(issue)
		for _, entry := range issueProviderTable {
			if strings.Contains(lower, entry.keyword) && !seen[entry.provider] {
				seen[entry.provider] = true
				out = append(out, entry.provider)
			}
		}
	}
	return out
}
